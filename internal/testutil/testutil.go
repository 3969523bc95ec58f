// Package testutil provides shared helpers for tests that need real
// infrastructure. Database-backed tests skip themselves unless TEST_DB_URL
// points at a disposable PostgreSQL instance, so unit-only runs stay green
// without any services up.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver

	"github.com/openregistrar/auditcore/internal/migrate"
)

// OpenTestDB connects to the database named by TEST_DB_URL, applies the
// embedded migrations, and returns the handle. The calling test is skipped
// when the variable is unset. The schema is truncated before returning so
// every test starts clean; never point TEST_DB_URL at shared data.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL is not set; skipping database-backed test")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := db.Close(); cerr != nil {
			t.Errorf("close test database: %v", cerr)
		}
	})

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping test database: %v", err)
	}
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	TruncateAll(t, db)
	return db
}

// TruncateAll clears every application table. Order does not matter because
// the truncation cascades through foreign keys.
func TruncateAll(t *testing.T, db *sql.DB) {
	t.Helper()

	tables := []string{
		"audit_memos",
		"audit_results",
		"audit_queue",
		"audit_queue_blocks",
		"audit_exceptions",
		"whatif_stages",
		"whatif_templates",
	}
	for _, table := range tables {
		if _, err := db.ExecContext(context.Background(), "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}
