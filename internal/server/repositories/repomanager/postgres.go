// Package repomanager vends repositories for the configured database and
// runs the embedded goose migrations for its dialect.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/irportal/anchorsign/internal/dbx"
	"github.com/irportal/anchorsign/internal/server/migrations"
	"github.com/irportal/anchorsign/internal/server/repositories/signaturerequests"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// SignatureRequests returns a signaturerequests.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) SignatureRequests(db dbx.DBTX) signaturerequests.Repository {
	return signaturerequests.NewPostgresRepository(db)
}

// RunMigrations applies the postgres migrations through the pgx driver.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db, "pgx", migrations.PostgresDir)
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}
