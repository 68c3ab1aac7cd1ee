package repomanager

import (
	"context"
	"database/sql"

	"github.com/irportal/anchorsign/internal/dbx"
	"github.com/irportal/anchorsign/internal/server/migrations"
	"github.com/irportal/anchorsign/internal/server/repositories/signaturerequests"
)

// SQLiteRepositoryManager vends SQLite-backed repositories for single-node
// deployments and tests.
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) SignatureRequests(db dbx.DBTX) signaturerequests.Repository {
	return signaturerequests.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db, "sqlite3", migrations.SQLiteDir)
}
