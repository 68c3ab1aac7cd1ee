package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irportal/anchorsign/internal/common"
	"github.com/irportal/anchorsign/internal/dbx"
	"github.com/irportal/anchorsign/internal/logging"
	"github.com/irportal/anchorsign/internal/pdf/pdftest"
	"github.com/irportal/anchorsign/internal/server/auth"
	"github.com/irportal/anchorsign/internal/server/config"
	"github.com/irportal/anchorsign/internal/server/repositories/repomanager"
	"github.com/irportal/anchorsign/internal/server/services"
	"github.com/irportal/anchorsign/internal/server/storage"
)

const secret = "test-secret"

type apiError struct {
	RequestID string `json:"request_id"`
	Error     struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newTestServer(t *testing.T, maxUpload int64) http.Handler {
	t.Helper()
	ctx := context.Background()

	db, err := dbx.Open(ctx, dbx.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	rm := &repomanager.SQLiteRepositoryManager{}
	require.NoError(t, rm.RunMigrations(ctx, db))

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SigningBaseURL = "https://sign.example"

	l := logging.Discard()
	store := storage.NewMemoryStore()
	engine := services.NewEngine(cfg)
	sigs := services.NewSignatureService(db, rm, store, engine, cfg, l)
	docs := services.NewDocumentService(store, engine, l)

	return NewHTTPServer("127.0.0.1:0", l, sigs, docs, secret, maxUpload).Routes()
}

func bearer(t *testing.T, id auth.Identity) string {
	t.Helper()
	tok, err := auth.GenerateToken(id, []byte(secret), time.Hour)
	require.NoError(t, err)
	return common.BearerPrefix + tok
}

var (
	ownerID  = auth.Identity{UserID: "gp-1", Email: "gp@example.com"}
	viewerID = auth.Identity{UserID: "lp-7", Email: "lp@example.com", Entity: "Acme Capital LP"}
)

func lpaDocument() []byte {
	return pdftest.Build(
		pdftest.Page{Content: pdftest.Text(72, 700, 12, "Limited Partnership Agreement")},
		pdftest.Page{Content: pdftest.Text(100, 150, 1, "SIG_ANCHOR:party_a")},
	)
}

func signaturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 120, 40))
	for x := 0; x < 120; x++ {
		img.SetNRGBA(x, 20, color.NRGBA{A: 0xff})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func do(t *testing.T, h http.Handler, method, target, authz string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, body)
	if authz != "" {
		r.Header.Set("Authorization", authz)
	}
	for k, v := range hdr {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func docPath(ref, suffix string) string {
	return "/api/documents/" + url.PathEscape(ref) + suffix
}

func upload(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/documents?required=party_a", bearer(t, ownerID), bytes.NewReader(lpaDocument()),
		map[string]string{"Content-Type": "application/pdf"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[uploadResponse](t, rec).DocumentRef
}

func create(t *testing.T, h http.Handler, ref string, extra string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"document_ref":"` + ref + `","anchor_id":"party_a","signer_name":"Ada Lovelace","signer_email":"ada@example.com"` + extra + `}`
	return do(t, h, http.MethodPost, "/api/signature-requests", bearer(t, ownerID), strings.NewReader(body), nil)
}

func multipartBody(t *testing.T, field string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(field, "signature.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, 0)
	rec := do(t, h, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-Id"), "req_"))
}

func TestAuthRequired(t *testing.T) {
	h := newTestServer(t, 0)

	rec := do(t, h, http.MethodPost, "/api/signature-requests", "", strings.NewReader(`{}`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/signature-requests", "Bearer garbage", strings.NewReader(`{}`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[apiError](t, rec).Error.Code)

	expired, err := auth.GenerateToken(ownerID, []byte(secret), -time.Minute)
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/api/signature-requests", "Bearer "+expired, strings.NewReader(`{}`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_EXPIRED", decode[apiError](t, rec).Error.Code)
}

func TestUpload(t *testing.T) {
	h := newTestServer(t, 0)
	ref := upload(t, h)
	assert.True(t, storage.ValidRef(ref))

	rec := do(t, h, http.MethodGet, docPath(ref, "/anchors"), bearer(t, ownerID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"anchor_id":"party_a"`)

	rec = do(t, h, http.MethodPost, "/api/documents?required=party_a,party_b", bearer(t, ownerID), bytes.NewReader(lpaDocument()), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := decode[apiError](t, rec)
	assert.Equal(t, "MISSING_ANCHORS", e.Error.Code)
	assert.Equal(t, []any{"party_b"}, e.Error.Details["missing"])

	rec = do(t, h, http.MethodPost, "/api/documents", bearer(t, ownerID), strings.NewReader("%PDF-1.7 broken"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MALFORMED_DOCUMENT", decode[apiError](t, rec).Error.Code)

	body, ct := multipartBody(t, "document", lpaDocument())
	rec = do(t, h, http.MethodPost, "/api/documents", bearer(t, ownerID), body, map[string]string{"Content-Type": ct})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body, ct = multipartBody(t, "other", lpaDocument())
	rec = do(t, h, http.MethodPost, "/api/documents", bearer(t, ownerID), body, map[string]string{"Content-Type": ct})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_TooLarge(t *testing.T) {
	h := newTestServer(t, 64)
	rec := do(t, h, http.MethodPost, "/api/documents", bearer(t, ownerID), bytes.NewReader(lpaDocument()), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSigningFlow(t *testing.T) {
	h := newTestServer(t, 0)
	ref := upload(t, h)

	rec := create(t, h, ref, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[createResponse](t, rec)
	assert.Len(t, created.Token, 64)
	assert.Equal(t, "https://sign.example/sign/"+created.Token, created.SigningURL)
	assert.True(t, created.ExpiresAt.After(time.Now().Add(167*time.Hour)))

	rec = do(t, h, http.MethodGet, "/api/signature-requests/"+created.Token, "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[summary](t, rec)
	assert.Equal(t, "pending", string(got.Status))
	require.NotNil(t, got.Anchor)
	assert.Equal(t, 2, got.Anchor.Page)

	body, ct := multipartBody(t, "signature", signaturePNG(t))
	rec = do(t, h, http.MethodPost, "/api/signature-requests/"+created.Token+"/submit", "", body,
		map[string]string{"Content-Type": ct, "X-Forwarded-For": "203.0.113.9, 10.0.0.1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	signed := decode[map[string]string](t, rec)["signed_document_ref"]
	assert.True(t, strings.HasPrefix(signed, ref+".signed."))

	rec = do(t, h, http.MethodPost, "/api/signature-requests/"+created.Token+"/submit", "", bytes.NewReader(signaturePNG(t)), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_RESOLVED", decode[apiError](t, rec).Error.Code)

	rec = do(t, h, http.MethodGet, "/api/signature-requests/"+created.Token, "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/signature-requests/"+created.Token+"/events", bearer(t, ownerID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"created"`)
	assert.Contains(t, rec.Body.String(), `"kind":"signed"`)

	rec = do(t, h, http.MethodGet, docPath(ref, "/signature-requests"), bearer(t, ownerID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"signed"`)
	assert.Contains(t, rec.Body.String(), signed)
}

func TestCreate_Errors(t *testing.T) {
	h := newTestServer(t, 0)
	ref := upload(t, h)

	body := `{"document_ref":"` + ref + `","anchor_id":"party_b","signer_name":"A","signer_email":"a@example.com"}`
	rec := do(t, h, http.MethodPost, "/api/signature-requests", bearer(t, ownerID), strings.NewReader(body), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ANCHOR", decode[apiError](t, rec).Error.Code)

	rec = do(t, h, http.MethodPost, "/api/signature-requests", bearer(t, ownerID), strings.NewReader(`{"unknown":1}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_JSON", decode[apiError](t, rec).Error.Code)

	rec = create(t, h, "documents/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/signature-requests", bearer(t, viewerID),
		strings.NewReader(`{"document_ref":"`+ref+`","anchor_id":"party_a","signer_name":"A","signer_email":"a@example.com"}`), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGet_UnknownAndExpired(t *testing.T) {
	h := newTestServer(t, 0)
	ref := upload(t, h)

	rec := do(t, h, http.MethodGet, "/api/signature-requests/does-not-exist", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = create(t, h, ref, `,"ttl":"1ms"`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	token := decode[createResponse](t, rec).Token
	time.Sleep(10 * time.Millisecond)

	rec = do(t, h, http.MethodPost, "/api/signature-requests/"+token+"/submit", "", bytes.NewReader(signaturePNG(t)), nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/signature-requests/"+token, "", nil, nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "EXPIRED", decode[apiError](t, rec).Error.Code)
}

func TestSubmit_BadImage(t *testing.T) {
	h := newTestServer(t, 0)
	ref := upload(t, h)
	token := decode[createResponse](t, create(t, h, ref, "")).Token

	rec := do(t, h, http.MethodPost, "/api/signature-requests/"+token+"/submit", "", strings.NewReader("not an image"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNSUPPORTED_IMAGE", decode[apiError](t, rec).Error.Code)

	// Still pending, so a retry succeeds.
	rec = do(t, h, http.MethodPost, "/api/signature-requests/"+token+"/submit", "", bytes.NewReader(signaturePNG(t)), nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCancel(t *testing.T) {
	h := newTestServer(t, 0)
	ref := upload(t, h)
	token := decode[createResponse](t, create(t, h, ref, "")).Token

	rec := do(t, h, http.MethodPost, "/api/signature-requests/"+token+"/cancel", bearer(t, viewerID), nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/signature-requests/"+token+"/cancel", bearer(t, ownerID), nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/signature-requests/"+token+"/submit", "", bytes.NewReader(signaturePNG(t)), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview(t *testing.T) {
	h := newTestServer(t, 0)
	ref := upload(t, h)

	rec := do(t, h, http.MethodGet, docPath(ref, "/preview"), bearer(t, ownerID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lpaDocument(), rec.Body.Bytes())

	rec = do(t, h, http.MethodGet, docPath(ref, "/preview"), bearer(t, viewerID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
	assert.NotEqual(t, lpaDocument(), rec.Body.Bytes())
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), lpaDocument()))

	rec = do(t, h, http.MethodGet, docPath("../etc/passwd", "/preview"), bearer(t, viewerID), nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, docPath(ref, "/anchors"), bearer(t, viewerID), nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDocumentURL(t *testing.T) {
	h := newTestServer(t, 0)
	ref := upload(t, h)

	rec := do(t, h, http.MethodGet, docPath(ref, "/url"), bearer(t, ownerID), nil, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = do(t, h, http.MethodGet, docPath(ref, "/url?ttl=forever"), bearer(t, ownerID), nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingSignatures struct {
	Signatures
}

func (failingSignatures) Fetch(context.Context, string) (*services.Signing, error) {
	return nil, errors.New("connection reset by peer")
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	h := NewHTTPServer("127.0.0.1:0", logging.Discard(), failingSignatures{}, nil, secret, 0).Routes()

	rec := do(t, h, http.MethodGet, "/api/signature-requests/abc", "", nil, map[string]string{"X-Request-Id": "req_given"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	e := decode[apiError](t, rec)
	assert.Equal(t, "INTERNAL", e.Error.Code)
	assert.Equal(t, "internal error", e.Error.Message)
	assert.Equal(t, "req_given", e.RequestID)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewHTTPServer("127.0.0.1:0", logging.Discard(), failingSignatures{}, nil, secret, 0)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_BadAddress(t *testing.T) {
	s := NewHTTPServer("127.0.0.1:99999", logging.Discard(), failingSignatures{}, nil, secret, 0)
	assert.Error(t, s.Run(context.Background()))
}
