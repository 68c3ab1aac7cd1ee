package httpapi

import (
	"errors"
	"net/http"

	"github.com/irportal/anchorsign/internal/anchors"
	"github.com/irportal/anchorsign/internal/common"
	"github.com/irportal/anchorsign/internal/compositor"
	"github.com/irportal/anchorsign/internal/httpx"
	"github.com/irportal/anchorsign/internal/pdf/layout"
	"github.com/irportal/anchorsign/internal/server/services"
	"github.com/irportal/anchorsign/internal/server/storage"
)

// writeError maps service errors to status codes. Anything unrecognised is
// logged and reported as a generic 500.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *anchors.MissingError
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, common.ErrorNotFound):
		httpx.WriteError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	case errors.Is(err, common.ErrExpired):
		httpx.WriteError(w, http.StatusGone, "EXPIRED", "signature request has expired", nil)
	case errors.Is(err, common.ErrAlreadyResolved):
		httpx.WriteError(w, http.StatusBadRequest, "ALREADY_RESOLVED", "signature request is no longer pending", nil)
	case errors.Is(err, common.ErrInvalidAnchor):
		httpx.WriteError(w, http.StatusBadRequest, "INVALID_ANCHOR", err.Error(), nil)
	case errors.As(err, &missing):
		httpx.WriteError(w, http.StatusBadRequest, "MISSING_ANCHORS", err.Error(), map[string]any{"missing": missing.IDs})
	case errors.Is(err, layout.ErrMalformedDocument):
		httpx.WriteError(w, http.StatusBadRequest, "MALFORMED_DOCUMENT", "document could not be parsed", nil)
	case errors.Is(err, compositor.ErrUnsupportedImage):
		httpx.WriteError(w, http.StatusBadRequest, "UNSUPPORTED_IMAGE", "signature image could not be decoded", nil)
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, storage.ErrInvalidRef):
		httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	case errors.As(err, &maxBytes):
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "request body too large", map[string]any{"limit": maxBytes.Limit})
	case errors.Is(err, common.ErrTokenExpired):
		httpx.WriteError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "access token expired", nil)
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
	case errors.Is(err, common.ErrorForbidden):
		httpx.WriteError(w, http.StatusForbidden, "FORBIDDEN", "forbidden", nil)
	case errors.Is(err, services.ErrPresignUnsupported):
		httpx.WriteError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "direct links are not available", nil)
	default:
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
