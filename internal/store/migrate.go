package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies pending goose migrations. Versions already recorded in
// goose_db_version are skipped, so every process runs it on start.
func Migrate(ctx context.Context, d *DB) error {
	if d == nil || d.Pool == nil {
		return ErrUnavailable
	}
	sqlDB := stdlib.OpenDBFromPool(d.Pool)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
