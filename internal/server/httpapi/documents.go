package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/irportal/anchorsign/internal/anchors"
	"github.com/irportal/anchorsign/internal/httpx"
)

type uploadResponse struct {
	DocumentRef string           `json:"document_ref"`
	ContentType string           `json:"content_type"`
	Anchors     []anchors.Anchor `json:"anchors"`
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (s *HTTPServer) uploadDocument(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r, "document")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	up, err := s.documents.Upload(r.Context(), identity(r), data, splitList(r.URL.Query().Get("required")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, uploadResponse{
		DocumentRef: up.Ref,
		ContentType: up.ContentType,
		Anchors:     up.Anchors,
	})
}

func (s *HTTPServer) documentAnchors(w http.ResponseWriter, r *http.Request) {
	ref, err := refParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	found, err := s.documents.Anchors(r.Context(), ref, identity(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"document_ref": ref, "anchors": found})
}

func (s *HTTPServer) previewDocument(w http.ResponseWriter, r *http.Request) {
	ref, err := refParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, contentType, err := s.documents.Preview(r.Context(), ref, identity(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) documentURL(w http.ResponseWriter, r *http.Request) {
	ref, err := refParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ttl := defaultURLTTL
	if v := r.URL.Query().Get("ttl"); v != "" {
		ttl, err = time.ParseDuration(v)
		if err != nil || ttl <= 0 || ttl > maxURLTTL {
			httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", "ttl must be a positive duration up to 168h", nil)
			return
		}
	}
	link, err := s.documents.DownloadURL(r.Context(), ref, identity(r), ttl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"url": link, "expires_in": ttl.String()})
}

func (s *HTTPServer) listSignatureRequests(w http.ResponseWriter, r *http.Request) {
	ref, err := refParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.signatures.ListByDocument(r.Context(), ref, identity(r).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]summary, 0, len(list))
	for _, req := range list {
		out = append(out, newSummary(req))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"document_ref": ref, "signature_requests": out})
}

