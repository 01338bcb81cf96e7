// Package testutil provides utilities for testing.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/stocksense/stocksense/internal/database"
)

// TestDB wraps a migrated in-memory database.
type TestDB struct {
	*database.DB
}

// NewTestDB creates a migrated in-memory SQLite database that is closed
// when the test ends.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	db, err := database.NewInMemory(context.Background())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return &TestDB{DB: db}
}

// AssertRowCount asserts the row count for a table.
func (tdb *TestDB) AssertRowCount(t *testing.T, table string, expected int) {
	t.Helper()

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := tdb.QueryRowContext(context.Background(), query).Scan(&count); err != nil {
		t.Fatalf("failed to count rows in %s: %v", table, err)
	}

	if count != expected {
		t.Errorf("expected %d rows in %s, got %d", expected, table, count)
	}
}
