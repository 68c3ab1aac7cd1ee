package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/irportal/anchorsign/internal/dbx"
	"github.com/irportal/anchorsign/internal/server/migrations"
	"github.com/irportal/anchorsign/internal/server/repositories/signaturerequests"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	SignatureRequests(db dbx.DBTX) signaturerequests.Repository
}

// New returns the manager for a configured database driver.
func New(driver string) (RepositoryManager, error) {
	switch driver {
	case dbx.DriverPostgres, "pgx":
		return &PostgresRepositoryManager{}, nil
	case dbx.DriverSQLite:
		return &SQLiteRepositoryManager{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

func migrate(ctx context.Context, db *sql.DB, dialect, dir string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, dir)
}
