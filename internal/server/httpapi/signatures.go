package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/irportal/anchorsign/internal/anchors"
	"github.com/irportal/anchorsign/internal/httpx"
	"github.com/irportal/anchorsign/internal/server/models"
	"github.com/irportal/anchorsign/internal/server/services"
	"github.com/irportal/anchorsign/internal/timex"
)

type createRequest struct {
	DocumentRef string         `json:"document_ref"`
	AnchorID    string         `json:"anchor_id"`
	SignerName  string         `json:"signer_name"`
	SignerEmail string         `json:"signer_email"`
	TTL         timex.Duration `json:"ttl"`
}

type createResponse struct {
	Token      string    `json:"token"`
	SigningURL string    `json:"signing_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type summary struct {
	Token        string          `json:"token"`
	DocumentRef  string          `json:"document_ref"`
	AnchorID     string          `json:"anchor_id"`
	SignerName   string          `json:"signer_name"`
	SignerEmail  string          `json:"signer_email"`
	Status       models.Status   `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	SignedAt     *time.Time      `json:"signed_at,omitempty"`
	SignedPDFRef *string         `json:"signed_document_ref,omitempty"`
	Anchor       *anchors.Anchor `json:"anchor,omitempty"`
}

func newSummary(req *models.SignatureRequest) summary {
	return summary{
		Token:        req.Token,
		DocumentRef:  req.DocumentRef,
		AnchorID:     req.AnchorID,
		SignerName:   req.SignerName,
		SignerEmail:  req.SignerEmail,
		Status:       req.Status,
		CreatedAt:    req.CreatedAt,
		ExpiresAt:    req.ExpiresAt,
		SignedAt:     req.SignedAt,
		SignedPDFRef: req.SignedPDFRef,
	}
}

func (s *HTTPServer) createSignatureRequest(w http.ResponseWriter, r *http.Request) {
	var in createRequest
	if err := httpx.ReadJSON(r, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	req, err := s.signatures.Create(r.Context(), services.CreateRequest{
		DocumentRef: in.DocumentRef,
		AnchorID:    in.AnchorID,
		SignerName:  in.SignerName,
		SignerEmail: in.SignerEmail,
		TTL:         in.TTL.Duration,
		CreatedBy:   identity(r).UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createResponse{
		Token:      req.Token,
		SigningURL: s.signatures.SigningURL(req.Token),
		ExpiresAt:  req.ExpiresAt,
	})
}

func (s *HTTPServer) getSignatureRequest(w http.ResponseWriter, r *http.Request) {
	signing, err := s.signatures.Fetch(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := newSummary(signing.Request)
	out.Anchor = &signing.Anchor
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) submitSignature(w http.ResponseWriter, r *http.Request) {
	sig, err := s.readUpload(w, r, "signature")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ref, err := s.signatures.Submit(r.Context(), chi.URLParam(r, "token"), sig, httpx.ClientIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"signed_document_ref": ref})
}

func (s *HTTPServer) cancelSignatureRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.signatures.Cancel(r.Context(), chi.URLParam(r, "token"), identity(r).UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) signatureEvents(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	events, err := s.signatures.Events(r.Context(), token, identity(r).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"token": token, "events": events})
}
