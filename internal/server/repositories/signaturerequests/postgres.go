package signaturerequests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/irportal/anchorsign/internal/common"
	"github.com/irportal/anchorsign/internal/dbx"
	"github.com/irportal/anchorsign/internal/server/models"
)

const pgUniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, req *models.SignatureRequest) error {
	query :=
		`INSERT INTO signature_requests (` + requestColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 `

	_, err := r.db.ExecContext(ctx, query,
		req.Token, req.DocumentRef, req.AnchorID, req.SignerName, req.SignerEmail, string(req.Status),
		req.CreatedBy, req.CreatedAt, req.ExpiresAt, req.SignedAt, req.SignedPDFRef, req.SignerIP)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*models.SignatureRequest, error) {
	query :=
		`SELECT ` + requestColumns + `
		 FROM signature_requests
		 WHERE token = $1
		 `

	req, err := scanPostgresRequest(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return req, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, token string, expected models.Status, upd models.StatusUpdate) error {
	query :=
		`UPDATE signature_requests
		 SET status = $3,
		     signed_at = COALESCE($4, signed_at),
		     signed_pdf_ref = COALESCE($5, signed_pdf_ref),
		     signer_ip = COALESCE($6, signer_ip)
		 WHERE token = $1 AND status = $2`
	args := []any{token, string(expected), string(upd.Status), upd.SignedAt, upd.SignedPDFRef, upd.SignerIP}
	if upd.ValidAt != nil {
		query += ` AND expires_at >= $7`
		args = append(args, *upd.ValidAt)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrConflict
	}
	return nil
}

func (r *PostgresRepository) ListByDocument(ctx context.Context, documentRef string) ([]*models.SignatureRequest, error) {
	query :=
		`SELECT ` + requestColumns + `
		 FROM signature_requests
		 WHERE document_ref = $1
		 ORDER BY created_at, token
		 `

	rows, err := r.db.QueryContext(ctx, query, documentRef)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.SignatureRequest{}
	for rows.Next() {
		req, err := scanPostgresRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) ExpirePending(ctx context.Context, now time.Time) ([]string, error) {
	query :=
		`UPDATE signature_requests
		 SET status = $1
		 WHERE status = $2 AND expires_at < $3
		 RETURNING token
		 `

	rows, err := r.db.QueryContext(ctx, query, string(models.StatusExpired), string(models.StatusPending), now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tokens, nil
}

func (r *PostgresRepository) AppendEvent(ctx context.Context, e *models.SignatureEvent) error {
	query :=
		`INSERT INTO signature_events (token, kind, detail, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query, e.Token, string(e.Kind), e.Detail, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Events(ctx context.Context, token string) ([]*models.SignatureEvent, error) {
	query :=
		`SELECT id, token, kind, detail, created_at
		 FROM signature_events
		 WHERE token = $1
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.SignatureEvent{}
	for rows.Next() {
		e := &models.SignatureEvent{}
		var kind string
		if err := rows.Scan(&e.ID, &e.Token, &kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.Kind = models.EventKind(kind)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func scanPostgresRequest(row scanner) (*models.SignatureRequest, error) {
	req := &models.SignatureRequest{}
	var (
		status   string
		signedAt sql.NullTime
		pdfRef   sql.NullString
		ip       sql.NullString
	)
	err := row.Scan(&req.Token, &req.DocumentRef, &req.AnchorID, &req.SignerName, &req.SignerEmail, &status,
		&req.CreatedBy, &req.CreatedAt, &req.ExpiresAt, &signedAt, &pdfRef, &ip)
	if err != nil {
		return nil, err
	}
	req.Status = models.Status(status)
	if signedAt.Valid {
		t := signedAt.Time
		req.SignedAt = &t
	}
	req.SignedPDFRef = nullString(pdfRef)
	req.SignerIP = nullString(ip)
	return req, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
