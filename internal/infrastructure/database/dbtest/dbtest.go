// Package dbtest opens a migrated SQLite database for repository tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nerrad567/smart-watering-core/internal/infrastructure/config"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/database"
	_ "github.com/nerrad567/smart-watering-core/migrations" // registers the schema
)

// Open returns a fresh database in t.TempDir() with every migration applied.
// It is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}

// Exec runs fixture SQL, failing the test on error.
func Exec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("fixture %q: %v", query, err)
	}
}
