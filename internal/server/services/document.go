package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irportal/anchorsign/internal/anchors"
	"github.com/irportal/anchorsign/internal/common"
	"github.com/irportal/anchorsign/internal/logging"
	"github.com/irportal/anchorsign/internal/server/auth"
	"github.com/irportal/anchorsign/internal/server/storage"
	"github.com/irportal/anchorsign/internal/watermark"
)

// ErrPresignUnsupported is returned by DownloadURL when the configured store
// cannot issue direct links.
var ErrPresignUnsupported = errors.New("storage backend cannot presign")

// Uploaded describes a stored document.
type Uploaded struct {
	Ref         string
	ContentType string
	Anchors     []anchors.Anchor
}

// DocumentService stores documents and serves them to owners and viewers.
type DocumentService struct {
	store  storage.DocumentStore
	engine *Engine
	log    logging.Logger
	now    func() time.Time
}

func NewDocumentService(store storage.DocumentStore, engine *Engine, l logging.Logger) *DocumentService {
	return &DocumentService{store: store, engine: engine, log: l, now: time.Now}
}

// Upload stores a PDF or image owned by owner. PDFs are parsed up front:
// a malformed PDF is rejected and, when required is non-empty, every listed
// anchor must be present.
func (s *DocumentService) Upload(ctx context.Context, owner *auth.Identity, data []byte, required []string) (*Uploaded, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: document is empty", common.ErrInvalidInput)
	}
	format, err := watermark.DetectFormat(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	out := &Uploaded{ContentType: format.ContentType(), Anchors: []anchors.Anchor{}}
	if format == watermark.FormatPDF {
		reg, err := s.engine.Anchors.Detect(data)
		if err != nil {
			return nil, err
		}
		if err := reg.ValidateRequired(required); err != nil {
			return nil, err
		}
		out.Anchors = reg.All()
		if d := reg.Duplicates(); len(d) > 0 {
			s.log.Warn(ctx, "duplicate anchors ignored", "count", len(d), "first", d[0].ID)
		}
	} else if len(required) > 0 {
		return nil, &anchors.MissingError{IDs: required}
	}

	out.Ref = storage.NewRef(s.now().UTC())
	if err := s.store.Put(ctx, out.Ref, storage.Object{Data: data, Owner: owner.UserID, ContentType: out.ContentType}); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	s.log.Info(ctx, "document stored", "ref", out.Ref, "anchors", len(out.Anchors))
	return out, nil
}

func (s *DocumentService) owned(ctx context.Context, ref string, by *auth.Identity) (*storage.Object, error) {
	obj, err := s.store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if obj.Owner != by.UserID {
		return nil, common.ErrorForbidden
	}
	return obj, nil
}

// Anchors re-detects the anchors of an owned document.
func (s *DocumentService) Anchors(ctx context.Context, ref string, by *auth.Identity) ([]anchors.Anchor, error) {
	obj, err := s.owned(ctx, ref, by)
	if err != nil {
		return nil, err
	}
	reg, err := s.engine.Anchors.Detect(obj.Data)
	if err != nil {
		return nil, err
	}
	return reg.All(), nil
}

// Preview returns the document as viewer may see it: the stored bytes for
// its owner and a watermarked copy naming viewer for everyone else.
func (s *DocumentService) Preview(ctx context.Context, ref string, viewer *auth.Identity) ([]byte, string, error) {
	obj, err := s.store.Get(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if obj.Owner == viewer.UserID {
		return obj.Data, obj.ContentType, nil
	}

	spec := watermark.Spec{Line1: viewer.Email, Line2: viewer.Entity}
	if spec.Line1 == "" {
		spec.Line1 = viewer.UserID
	}

	var (
		out    []byte
		format watermark.Format
	)
	err = s.engine.Pool.Do(ctx, func() error {
		var serr error
		out, format, serr = s.engine.Stamper.Stamp(obj.Data, spec)
		return serr
	})
	if err != nil {
		return nil, "", fmt.Errorf("watermark %s: %w", ref, err)
	}
	s.log.Info(ctx, "watermarked preview served", "ref", ref, "viewer", viewer.UserID)
	return out, format.ContentType(), nil
}

// DownloadURL returns a temporary direct link to an owned document.
func (s *DocumentService) DownloadURL(ctx context.Context, ref string, by *auth.Identity, ttl time.Duration) (string, error) {
	p, ok := s.store.(storage.Presigner)
	if !ok {
		return "", ErrPresignUnsupported
	}
	if _, err := s.owned(ctx, ref, by); err != nil {
		return "", err
	}
	return p.PresignGet(ctx, ref, ttl)
}
