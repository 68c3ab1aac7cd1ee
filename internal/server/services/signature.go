// Package services contains server-side business logic. This file implements
// SignatureService, the token-keyed signature request lifecycle:
//
//	pending -> signed | expired | cancelled
//
// Every terminal status is final. Expiry is a time predicate checked on every
// read; the background sweep only catches up rows nobody reads.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/irportal/anchorsign/internal/anchors"
	"github.com/irportal/anchorsign/internal/common"
	"github.com/irportal/anchorsign/internal/compositor"
	"github.com/irportal/anchorsign/internal/dbx"
	"github.com/irportal/anchorsign/internal/logging"
	"github.com/irportal/anchorsign/internal/server/config"
	"github.com/irportal/anchorsign/internal/server/models"
	"github.com/irportal/anchorsign/internal/server/repositories/repomanager"
	"github.com/irportal/anchorsign/internal/server/repositories/signaturerequests"
	"github.com/irportal/anchorsign/internal/server/storage"
)

// CreateRequest is the input of SignatureService.Create.
type CreateRequest struct {
	DocumentRef string
	AnchorID    string
	SignerName  string
	SignerEmail string
	// TTL of the request; zero means the configured default.
	TTL time.Duration
	// CreatedBy is the issuing owner. When set it must own the document.
	CreatedBy string
}

// Signing is a pending request with its resolved anchor.
type Signing struct {
	Request *models.SignatureRequest
	Anchor  anchors.Anchor
}

type SignatureService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.DocumentStore
	engine      *Engine
	log         logging.Logger

	defaultTTL time.Duration
	tokenBytes int
	baseURL    string

	now func() time.Time
	// inflight holds tokens whose submit is compositing in this process.
	inflight sync.Map
}

func NewSignatureService(db *sql.DB, m repomanager.RepositoryManager, store storage.DocumentStore,
	engine *Engine, cfg *config.Config, l logging.Logger) *SignatureService {
	tokenBytes := cfg.TokenBytes
	if tokenBytes < 16 {
		tokenBytes = 16
	}
	return &SignatureService{
		db:          db,
		repomanager: m,
		store:       store,
		engine:      engine,
		log:         l,
		defaultTTL:  cfg.SigningRequestTTL,
		tokenBytes:  tokenBytes,
		baseURL:     strings.TrimRight(cfg.SigningBaseURL, "/"),
		now:         time.Now,
	}
}

// SigningURL is the link handed to the signer.
func (s *SignatureService) SigningURL(token string) string {
	return s.baseURL + "/sign/" + token
}

func (s *SignatureService) repo(db dbx.DBTX) signaturerequests.Repository {
	return s.repomanager.SignatureRequests(db)
}

func validateCreate(in CreateRequest) error {
	switch {
	case strings.TrimSpace(in.DocumentRef) == "":
		return fmt.Errorf("%w: document_ref is required", common.ErrInvalidInput)
	case strings.TrimSpace(in.AnchorID) == "":
		return fmt.Errorf("%w: anchor_id is required", common.ErrInvalidInput)
	case strings.TrimSpace(in.SignerName) == "":
		return fmt.Errorf("%w: signer_name is required", common.ErrInvalidInput)
	case in.TTL < 0:
		return fmt.Errorf("%w: ttl must not be negative", common.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.SignerEmail); err != nil {
		return fmt.Errorf("%w: signer_email: %v", common.ErrInvalidInput, err)
	}
	return nil
}

// Create issues a pending request after checking that the anchor resolves
// against the stored document. Nothing is written when it does not.
func (s *SignatureService) Create(ctx context.Context, in CreateRequest) (*models.SignatureRequest, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	obj, err := s.store.Get(ctx, in.DocumentRef)
	if err != nil {
		return nil, err
	}
	if in.CreatedBy != "" && obj.Owner != in.CreatedBy {
		return nil, common.ErrorForbidden
	}

	reg, err := s.engine.Anchors.Detect(obj.Data)
	if err != nil {
		return nil, err
	}
	if _, err := reg.Get(in.AnchorID); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidAnchor, err)
	}

	token, err := common.MakeRandHexString(s.tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	ttl := in.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	now := s.now().UTC()
	req := &models.SignatureRequest{
		Token:       token,
		DocumentRef: in.DocumentRef,
		AnchorID:    in.AnchorID,
		SignerName:  strings.TrimSpace(in.SignerName),
		SignerEmail: strings.TrimSpace(in.SignerEmail),
		Status:      models.StatusPending,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		if err := repo.Insert(ctx, req); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, &models.SignatureEvent{Token: token, Kind: models.EventCreated, CreatedAt: now})
	})
	if err != nil {
		return nil, fmt.Errorf("store signature request: %w", err)
	}

	s.log.Info(ctx, "signature request created",
		"document_ref", req.DocumentRef, "anchor_id", req.AnchorID, "expires_at", req.ExpiresAt)
	return req, nil
}

// GetByToken returns a pending request. Unknown tokens yield
// common.ErrorNotFound, past-deadline or expired requests common.ErrExpired
// and signed or cancelled ones common.ErrAlreadyResolved.
func (s *SignatureService) GetByToken(ctx context.Context, token string) (*models.SignatureRequest, error) {
	req, err := s.repo(s.db).FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.checkPending(ctx, req, true)
}

func (s *SignatureService) checkPending(ctx context.Context, req *models.SignatureRequest, retry bool) (*models.SignatureRequest, error) {
	switch req.Status {
	case models.StatusExpired:
		return nil, common.ErrExpired
	case models.StatusSigned, models.StatusCancelled:
		return nil, common.ErrAlreadyResolved
	case models.StatusPending:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrorInternal, req.Status)
	}

	now := s.now().UTC()
	if !req.ExpiredAt(now) {
		return req, nil
	}

	err := s.transition(ctx, req.Token, models.StatusUpdate{Status: models.StatusExpired}, models.EventExpired, "lazy", now)
	if errors.Is(err, common.ErrConflict) && retry {
		// Someone else resolved it first; report what they did.
		fresh, ferr := s.repo(s.db).FindByToken(ctx, req.Token)
		if ferr != nil {
			return nil, ferr
		}
		return s.checkPending(ctx, fresh, false)
	}
	if err != nil && !errors.Is(err, common.ErrConflict) {
		return nil, err
	}
	s.log.Info(ctx, "signature request expired", "token", req.Token)
	return nil, common.ErrExpired
}

// transition moves a pending request to upd.Status and records the event in
// the same transaction.
func (s *SignatureService) transition(ctx context.Context, token string, upd models.StatusUpdate,
	kind models.EventKind, detail string, now time.Time) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		if err := repo.UpdateStatus(ctx, token, models.StatusPending, upd); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, &models.SignatureEvent{Token: token, Kind: kind, Detail: detail, CreatedAt: now})
	})
}

func (s *SignatureService) resolveAnchor(ctx context.Context, req *models.SignatureRequest) (*storage.Object, anchors.Anchor, error) {
	obj, err := s.store.Get(ctx, req.DocumentRef)
	if err != nil {
		return nil, anchors.Anchor{}, err
	}
	reg, err := s.engine.Anchors.Detect(obj.Data)
	if err != nil {
		return nil, anchors.Anchor{}, err
	}
	a, err := reg.Get(req.AnchorID)
	if err != nil {
		return nil, anchors.Anchor{}, fmt.Errorf("%w: %w", common.ErrInvalidAnchor, err)
	}
	return obj, a, nil
}

// Fetch returns a pending request together with where its signature will go,
// re-detecting the anchor from the current document bytes.
func (s *SignatureService) Fetch(ctx context.Context, token string) (*Signing, error) {
	req, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	_, a, err := s.resolveAnchor(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Signing{Request: req, Anchor: a}, nil
}

// Submit burns signature into the request's document, stores the result and
// marks the request signed. On any failure before the status write the
// request stays pending and the signer may retry. Only one of several
// concurrent submits for a token can succeed; the others get
// common.ErrAlreadyResolved. The deadline is checked again by the status
// write, so a submit that finishes late gets common.ErrExpired.
func (s *SignatureService) Submit(ctx context.Context, token string, signature []byte, signerIP string) (string, error) {
	req, err := s.GetByToken(ctx, token)
	if err != nil {
		return "", err
	}
	if len(signature) == 0 {
		return "", fmt.Errorf("%w: signature image is empty", common.ErrInvalidInput)
	}
	if _, busy := s.inflight.LoadOrStore(token, struct{}{}); busy {
		return "", common.ErrAlreadyResolved
	}
	defer s.inflight.Delete(token)

	obj, a, err := s.resolveAnchor(ctx, req)
	if err != nil {
		return "", err
	}

	var signed []byte
	err = s.engine.Pool.Do(ctx, func() error {
		var cerr error
		signed, cerr = s.engine.Compositor.Apply(obj.Data, a, signature)
		return cerr
	})
	if err != nil {
		s.submitFailed(ctx, req, a, err)
		return "", fmt.Errorf("composite signature: %w", err)
	}

	signedRef := storage.NewSignedRef(req.DocumentRef)
	if err := s.store.Put(ctx, signedRef, storage.Object{Data: signed, Owner: obj.Owner, ContentType: "application/pdf"}); err != nil {
		s.submitFailed(ctx, req, a, err)
		return "", fmt.Errorf("store signed document: %w", err)
	}

	now := s.now().UTC()
	upd := models.StatusUpdate{Status: models.StatusSigned, SignedAt: &now, SignedPDFRef: &signedRef, ValidAt: &now}
	if signerIP != "" {
		upd.SignerIP = &signerIP
	}
	if err := s.transition(ctx, token, upd, models.EventSigned, signedRef, now); err != nil {
		if delErr := s.store.Delete(ctx, signedRef); delErr != nil {
			s.log.Warn(ctx, "orphaned signed document", "ref", signedRef, "error", delErr)
		}
		if errors.Is(err, common.ErrConflict) {
			return "", s.lostSubmit(ctx, token)
		}
		return "", fmt.Errorf("mark request signed: %w", err)
	}

	s.log.Info(ctx, "signature request signed",
		"document_ref", req.DocumentRef, "anchor_id", req.AnchorID, "signed_pdf_ref", signedRef)
	return signedRef, nil
}

// lostSubmit reports why the final pending to signed update matched no row:
// another resolution won, or the deadline passed while compositing.
func (s *SignatureService) lostSubmit(ctx context.Context, token string) error {
	fresh, err := s.repo(s.db).FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if _, err := s.checkPending(ctx, fresh, true); err != nil {
		return err
	}
	return common.ErrAlreadyResolved
}

func (s *SignatureService) submitFailed(ctx context.Context, req *models.SignatureRequest, a anchors.Anchor, cause error) {
	var pe *compositor.PageOutOfRangeError
	if errors.As(cause, &pe) {
		s.log.Error(ctx, "anchor page outside document",
			"token", req.Token, "document_ref", req.DocumentRef, "anchor_id", a.ID,
			"page", pe.Page, "page_count", pe.PageCount)
	} else {
		s.log.Warn(ctx, "signature submit failed", "token", req.Token, "error", cause)
	}

	e := &models.SignatureEvent{Token: req.Token, Kind: models.EventFailed, Detail: cause.Error(), CreatedAt: s.now().UTC()}
	if err := s.repo(s.db).AppendEvent(ctx, e); err != nil {
		s.log.Warn(ctx, "record submit failure", "token", req.Token, "error", err)
	}
}

// Cancel withdraws a pending request. by, when set, must be the issuing
// owner. Requests that are no longer pending, including ones past their
// deadline, yield common.ErrAlreadyResolved.
func (s *SignatureService) Cancel(ctx context.Context, token, by string) error {
	req, err := s.repo(s.db).FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if by != "" && req.CreatedBy != by {
		return common.ErrorForbidden
	}
	if _, err := s.checkPending(ctx, req, false); err != nil {
		if errors.Is(err, common.ErrExpired) {
			return common.ErrAlreadyResolved
		}
		return err
	}

	err = s.transition(ctx, token, models.StatusUpdate{Status: models.StatusCancelled}, models.EventCancelled, by, s.now().UTC())
	if errors.Is(err, common.ErrConflict) {
		return common.ErrAlreadyResolved
	}
	if err != nil {
		return err
	}
	s.log.Info(ctx, "signature request cancelled", "document_ref", req.DocumentRef, "anchor_id", req.AnchorID)
	return nil
}

// ExpireSweep marks every overdue pending request expired and returns how
// many it touched.
func (s *SignatureService) ExpireSweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	var tokens []string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		var err error
		tokens, err = repo.ExpirePending(ctx, now)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			if err := repo.AppendEvent(ctx, &models.SignatureEvent{Token: t, Kind: models.EventExpired, Detail: "sweep", CreatedAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(tokens) > 0 {
		s.log.Info(ctx, "expired signature requests", "count", len(tokens))
	}
	return len(tokens), nil
}

// RunSweeper calls ExpireSweep every interval until ctx ends.
func (s *SignatureService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireSweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error(ctx, "expiry sweep failed", "error", err)
			}
		}
	}
}

// ListByDocument returns every request issued for a document, in creation
// order. by, when set, must own the document.
func (s *SignatureService) ListByDocument(ctx context.Context, documentRef, by string) ([]*models.SignatureRequest, error) {
	if by != "" {
		obj, err := s.store.Get(ctx, documentRef)
		if err != nil {
			return nil, err
		}
		if obj.Owner != by {
			return nil, common.ErrorForbidden
		}
	}
	return s.repo(s.db).ListByDocument(ctx, documentRef)
}

// Events returns the audit trail of a request. by, when set, must be the
// issuing owner.
func (s *SignatureService) Events(ctx context.Context, token, by string) ([]*models.SignatureEvent, error) {
	repo := s.repo(s.db)
	req, err := repo.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if by != "" && req.CreatedBy != by {
		return nil, common.ErrorForbidden
	}
	return repo.Events(ctx, token)
}
