// Package testing provides testing utilities and helpers for the rebalancer.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/rebalancer/internal/database"
)

// NewTestDB creates a temporary SQLite database with the named schema applied.
// The database is closed when the test ends.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}
