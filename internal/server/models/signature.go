package models

import "time"

// Status of a signature request. Every status other than StatusPending is
// terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSigned    Status = "signed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSigned, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// SignatureRequest is one request for a signer to sign a document at an
// anchor. Rows are never deleted.
type SignatureRequest struct {
	Token       string
	DocumentRef string
	AnchorID    string
	SignerName  string
	SignerEmail string
	Status      Status
	// CreatedBy is the user id of the owner who issued the request.
	CreatedBy string
	CreatedAt time.Time
	// ExpiresAt is fixed at creation.
	ExpiresAt    time.Time
	SignedAt     *time.Time
	SignedPDFRef *string
	SignerIP     *string
}

// ExpiredAt reports whether a pending request is past its deadline at now.
func (r *SignatureRequest) ExpiredAt(now time.Time) bool {
	return r.Status == StatusPending && now.After(r.ExpiresAt)
}

// StatusUpdate carries the fields written together with a status change.
// Nil fields are left as they are.
type StatusUpdate struct {
	Status       Status
	SignedAt     *time.Time
	SignedPDFRef *string
	SignerIP     *string
	// ValidAt, when set, also requires the request not to have expired at
	// that instant.
	ValidAt *time.Time
}

// EventKind names an audit event.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventSigned    EventKind = "signed"
	EventExpired   EventKind = "expired"
	EventCancelled EventKind = "cancelled"
	EventFailed    EventKind = "submit_failed"
)

// SignatureEvent is one audit record for a request.
type SignatureEvent struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Kind      EventKind `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
