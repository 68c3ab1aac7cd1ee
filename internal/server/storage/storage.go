// Package storage keeps document bytes behind a small interface with S3,
// on-disk and in-memory backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	sc "github.com/irportal/anchorsign/internal/server/config"
)

// ErrInvalidRef is returned for references that are empty or escape the
// store's namespace.
var ErrInvalidRef = errors.New("invalid document ref")

// Object is a stored document with its metadata.
type Object struct {
	Data        []byte
	Owner       string
	ContentType string
}

// DocumentStore stores documents by reference. Get returns
// common.ErrorNotFound for an unknown reference.
type DocumentStore interface {
	Put(ctx context.Context, ref string, obj Object) error
	Get(ctx context.Context, ref string) (*Object, error)
	Delete(ctx context.Context, ref string) error
}

// Presigner is implemented by stores that can hand out temporary direct
// download links.
type Presigner interface {
	PresignGet(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

// NewRef returns a fresh reference grouped by day.
func NewRef(now time.Time) string {
	return fmt.Sprintf("documents/%d/%02d/%02d/%v", now.Year(), now.Month(), now.Day(), uuid.New())
}

// NewSignedRef returns a fresh reference for a signed revision of ref. It is
// a sibling of ref so file-backed stores can keep both, and unique per
// attempt so a losing concurrent submit never overwrites the winner.
func NewSignedRef(ref string) string {
	return ref + ".signed." + uuid.NewString()
}

// ValidRef reports whether ref is a relative slash-separated path without
// dot segments.
func ValidRef(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "/") || strings.Contains(ref, "\\") {
		return false
	}
	if path.Clean(ref) != ref {
		return false
	}
	for _, seg := range strings.Split(ref, "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// New builds the backend named by cfg.StorageBackend.
func New(ctx context.Context, cfg *sc.Config) (DocumentStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "dir":
		return NewDirStore(cfg.StorageDir)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
}
