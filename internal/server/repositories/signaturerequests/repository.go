// Package signaturerequests persists signature requests and their audit
// events.
package signaturerequests

import (
	"context"
	"time"

	"github.com/irportal/anchorsign/internal/server/models"
)

// Repository stores signature requests.
//
// UpdateStatus is a compare-and-swap on the status column: it writes only if
// the stored status still equals expected and returns common.ErrConflict
// otherwise. Insert returns common.ErrConflict for a duplicate token and
// FindByToken returns common.ErrorNotFound for an unknown one.
type Repository interface {
	Insert(ctx context.Context, r *models.SignatureRequest) error
	FindByToken(ctx context.Context, token string) (*models.SignatureRequest, error)
	UpdateStatus(ctx context.Context, token string, expected models.Status, upd models.StatusUpdate) error
	ListByDocument(ctx context.Context, documentRef string) ([]*models.SignatureRequest, error)
	// ExpirePending moves every pending request whose deadline is before now
	// to expired and returns the affected tokens.
	ExpirePending(ctx context.Context, now time.Time) ([]string, error)
	AppendEvent(ctx context.Context, e *models.SignatureEvent) error
	Events(ctx context.Context, token string) ([]*models.SignatureEvent, error)
}

const requestColumns = `token, document_ref, anchor_id, signer_name, signer_email, status,
		created_by, created_at, expires_at, signed_at, signed_pdf_ref, signer_ip`

type scanner interface {
	Scan(dest ...any) error
}
