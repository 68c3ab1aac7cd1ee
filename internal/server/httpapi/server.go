// Package httpapi exposes documents and signature requests over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/irportal/anchorsign/internal/anchors"
	"github.com/irportal/anchorsign/internal/logging"
	"github.com/irportal/anchorsign/internal/server/auth"
	"github.com/irportal/anchorsign/internal/server/models"
	"github.com/irportal/anchorsign/internal/server/services"
)

// Signatures is the part of services.SignatureService the API uses.
type Signatures interface {
	SigningURL(token string) string
	Create(ctx context.Context, in services.CreateRequest) (*models.SignatureRequest, error)
	Fetch(ctx context.Context, token string) (*services.Signing, error)
	Submit(ctx context.Context, token string, signature []byte, signerIP string) (string, error)
	Cancel(ctx context.Context, token, by string) error
	ListByDocument(ctx context.Context, documentRef, by string) ([]*models.SignatureRequest, error)
	Events(ctx context.Context, token, by string) ([]*models.SignatureEvent, error)
}

// Documents is the part of services.DocumentService the API uses.
type Documents interface {
	Upload(ctx context.Context, owner *auth.Identity, data []byte, required []string) (*services.Uploaded, error)
	Anchors(ctx context.Context, ref string, by *auth.Identity) ([]anchors.Anchor, error)
	Preview(ctx context.Context, ref string, viewer *auth.Identity) ([]byte, string, error)
	DownloadURL(ctx context.Context, ref string, by *auth.Identity, ttl time.Duration) (string, error)
}

const (
	defaultURLTTL = 15 * time.Minute
	maxURLTTL     = 7 * 24 * time.Hour
	shutdownGrace = 10 * time.Second
)

type HTTPServer struct {
	address    string
	signatures Signatures
	documents  Documents
	logger     logging.Logger
	jwtSecret  []byte
	maxUpload  int64
}

func NewHTTPServer(a string, l logging.Logger, sigs Signatures, docs Documents, secretKey string, maxUpload int64) *HTTPServer {
	return &HTTPServer{
		address:    a,
		signatures: sigs,
		documents:  docs,
		logger:     l.With("module", "http_server"),
		jwtSecret:  []byte(secretKey),
		maxUpload:  maxUpload,
	}
}

// Routes returns the API router.
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID, s.accessLog, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api", func(api chi.Router) {
		// The token itself authorizes the signer.
		api.Get("/signature-requests/{token}", s.getSignatureRequest)
		api.Post("/signature-requests/{token}/submit", s.submitSignature)

		api.Group(func(owner chi.Router) {
			owner.Use(s.authenticate)

			owner.Post("/documents", s.uploadDocument)
			owner.Get("/documents/{ref}/anchors", s.documentAnchors)
			owner.Get("/documents/{ref}/preview", s.previewDocument)
			owner.Get("/documents/{ref}/url", s.documentURL)
			owner.Get("/documents/{ref}/signature-requests", s.listSignatureRequests)

			owner.Post("/signature-requests", s.createSignatureRequest)
			owner.Post("/signature-requests/{token}/cancel", s.cancelSignatureRequest)
			owner.Get("/signature-requests/{token}/events", s.signatureEvents)
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
