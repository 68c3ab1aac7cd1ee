// Package migrations embeds the goose migrations for every supported dialect.
package migrations

import "embed"

// Migrations holds one directory of goose SQL files per dialect.
//
//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS

// Directories inside Migrations.
const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
