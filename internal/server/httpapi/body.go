package httpapi

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/irportal/anchorsign/internal/common"
	"github.com/irportal/anchorsign/internal/server/storage"
)

// readUpload returns the bytes of the multipart part named field, or the raw
// body for any other content type. The body is capped at s.maxUpload.
func (s *HTTPServer) readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, error) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: missing %q part", common.ErrInvalidInput, field)
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != field {
			_ = part.Close()
			continue
		}
		defer part.Close()
		return io.ReadAll(part)
	}
}

// refParam returns the unescaped {ref} path parameter. Refs contain slashes
// and travel percent-encoded in a single path segment.
func refParam(r *http.Request) (string, error) {
	ref, err := url.PathUnescape(chi.URLParam(r, "ref"))
	if err != nil || !storage.ValidRef(ref) {
		return "", storage.ErrInvalidRef
	}
	return ref, nil
}
