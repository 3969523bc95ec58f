// Package migrate applies the embedded schema migrations for the audit
// store: the queue, the result history, memos, exceptions, and what-if
// staging tables.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run applies every embedded migration that has not been recorded in
// schema_migrations yet, in filename order. Calling it repeatedly, or from
// several processes at once, is safe: each version row is claimed inside the
// migration's own transaction.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}

	logger := slog.Default().With("component", "migrations")
	for _, name := range names {
		if err := applyOne(ctx, db, logger, name); err != nil {
			return err
		}
	}
	return nil
}

func migrationNames() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// applyOne runs a single migration file. The version row is inserted first
// with ON CONFLICT DO NOTHING; when another process already claimed it, the
// migration is skipped without executing its SQL.
func applyOne(ctx context.Context, db *sql.DB, logger *slog.Logger, name string) error {
	version := strings.TrimSuffix(name, ".sql")

	body, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "rollback migration", "version", version, "err", rerr)
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version) VALUES ($1)
		ON CONFLICT (version) DO NOTHING
	`, version)
	if err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if claimed == 0 {
		return nil
	}

	logger.InfoContext(ctx, "applying migration", "version", version)
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec migration %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}
