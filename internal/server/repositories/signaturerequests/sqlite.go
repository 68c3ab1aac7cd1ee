package signaturerequests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/irportal/anchorsign/internal/common"
	"github.com/irportal/anchorsign/internal/dbx"
	"github.com/irportal/anchorsign/internal/server/models"
)

// SQLiteRepository stores requests in SQLite. Times are kept as Unix
// nanoseconds so ordering and comparisons happen on integers.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, req *models.SignatureRequest) error {
	query :=
		`INSERT INTO signature_requests (` + requestColumns + `)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 `

	_, err := r.db.ExecContext(ctx, query,
		req.Token, req.DocumentRef, req.AnchorID, req.SignerName, req.SignerEmail, string(req.Status),
		req.CreatedBy, unixNano(req.CreatedAt), unixNano(req.ExpiresAt), unixNanoPtr(req.SignedAt),
		req.SignedPDFRef, req.SignerIP)
	if err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindByToken(ctx context.Context, token string) (*models.SignatureRequest, error) {
	query :=
		`SELECT ` + requestColumns + `
		 FROM signature_requests
		 WHERE token = ?
		 `

	req, err := scanSQLiteRequest(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return req, nil
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, token string, expected models.Status, upd models.StatusUpdate) error {
	query :=
		`UPDATE signature_requests
		 SET status = ?,
		     signed_at = COALESCE(?, signed_at),
		     signed_pdf_ref = COALESCE(?, signed_pdf_ref),
		     signer_ip = COALESCE(?, signer_ip)
		 WHERE token = ? AND status = ?`
	args := []any{string(upd.Status), unixNanoPtr(upd.SignedAt), upd.SignedPDFRef, upd.SignerIP, token, string(expected)}
	if upd.ValidAt != nil {
		query += ` AND expires_at >= ?`
		args = append(args, unixNano(*upd.ValidAt))
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

func (r *SQLiteRepository) ListByDocument(ctx context.Context, documentRef string) ([]*models.SignatureRequest, error) {
	query :=
		`SELECT ` + requestColumns + `
		 FROM signature_requests
		 WHERE document_ref = ?
		 ORDER BY created_at, token
		 `

	rows, err := r.db.QueryContext(ctx, query, documentRef)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.SignatureRequest{}
	for rows.Next() {
		req, err := scanSQLiteRequest(rows)
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

func (r *SQLiteRepository) ExpirePending(ctx context.Context, now time.Time) ([]string, error) {
	query :=
		`UPDATE signature_requests
		 SET status = ?
		 WHERE status = ? AND expires_at < ?
		 RETURNING token
		 `

	rows, err := r.db.QueryContext(ctx, query, string(models.StatusExpired), string(models.StatusPending), unixNano(now))
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

func (r *SQLiteRepository) AppendEvent(ctx context.Context, e *models.SignatureEvent) error {
	query :=
		`INSERT INTO signature_events (token, kind, detail, created_at)
		 VALUES (?, ?, ?, ?)
		 `

	res, err := r.db.ExecContext(ctx, query, e.Token, string(e.Kind), e.Detail, unixNano(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	e.ID = id
	return nil
}

func (r *SQLiteRepository) Events(ctx context.Context, token string) ([]*models.SignatureEvent, error) {
	query :=
		`SELECT id, token, kind, detail, created_at
		 FROM signature_events
		 WHERE token = ?
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
		var (
			kind    string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Token, &kind, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.Kind = models.EventKind(kind)
		e.CreatedAt = fromUnixNano(created)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func scanSQLiteRequest(row scanner) (*models.SignatureRequest, error) {
	req := &models.SignatureRequest{}
	var (
		status           string
		created, expires int64
		signedAt         sql.NullInt64
		pdfRef, ip       sql.NullString
	)
	err := row.Scan(&req.Token, &req.DocumentRef, &req.AnchorID, &req.SignerName, &req.SignerEmail, &status,
		&req.CreatedBy, &created, &expires, &signedAt, &pdfRef, &ip)
	if err != nil {
		return nil, err
	}
	req.Status = models.Status(status)
	req.CreatedAt = fromUnixNano(created)
	req.ExpiresAt = fromUnixNano(expires)
	if signedAt.Valid {
		t := fromUnixNano(signedAt.Int64)
		req.SignedAt = &t
	}
	req.SignedPDFRef = nullString(pdfRef)
	req.SignerIP = nullString(ip)
	return req, nil
}

func unixNano(t time.Time) int64 { return t.UnixNano() }

func unixNanoPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }
