package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLock is the pg_advisory_xact_lock key held while the schema is upgraded.
const migrationLock = 0x63616e74

// Migrate applies every embedded migration that is not yet recorded in
// registry_migrations, in filename order, and returns how many ran.
func (p *Pool) Migrate(ctx context.Context) (int, error) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return 0, fmt.Errorf("listing migrations: %w", err)
	}
	slices.Sort(files)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
		return 0, fmt.Errorf("locking schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS registry_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return 0, fmt.Errorf("creating migrations table: %w", err)
	}

	applied := 0
	for _, file := range files {
		var done bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM registry_migrations WHERE name = $1)`, file).Scan(&done); err != nil {
			return 0, fmt.Errorf("checking migration %s: %w", file, err)
		}
		if done {
			continue
		}

		script, err := migrationsFS.ReadFile(file)
		if err != nil {
			return 0, fmt.Errorf("reading migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			return 0, fmt.Errorf("running migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO registry_migrations (name) VALUES ($1)`, file); err != nil {
			return 0, fmt.Errorf("recording migration %s: %w", file, err)
		}
		slog.Info("applied registry migration", "name", file)
		applied++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing migrations: %w", err)
	}
	return applied, nil
}
