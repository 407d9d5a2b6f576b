package testutil

import (
	"database/sql"
	"testing"

	"github.com/vrsandeep/mango-scraper/internal/assets"
	"github.com/vrsandeep/mango-scraper/internal/db"

	_ "github.com/mattn/go-sqlite3" // Blank import for sql driver
)

// SetupTestDB creates an in-memory SQLite database and applies all migrations.
// It returns the database connection, ready for use in tests.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	// Every new connection to :memory: is a fresh, empty database.
	database.SetMaxOpenConns(1)

	t.Cleanup(func() {
		database.Close()
	})

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

// SetupFileDB creates a migrated database file in a temp dir. Use it for
// tests that need several concurrent connections.
func SetupFileDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.InitDB(TempPath(t, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open file database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}
