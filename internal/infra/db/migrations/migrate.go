// Package migrations embeds the schema for both SQL dialects and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed mysql/*.sql postgres/*.sql
var migrationFiles embed.FS

// Run applies pending migrations for dialect ("mysql" or "postgres"). A nil db is a no-op.
func Run(ctx context.Context, db *sql.DB, dialect string) error {
	if db == nil {
		return nil
	}
	switch dialect {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported migration dialect %q", dialect)
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, dialect)
}
