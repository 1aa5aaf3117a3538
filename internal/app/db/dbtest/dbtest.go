// Package dbtest opens throwaway migrated stores for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"roomchat/internal/app/db"
)

// New returns a migrated SQLite store living in the test's temp dir.
func New(t testing.TB) *db.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "roomchat.db")
	store, err := db.Open(context.Background(), "sqlite://"+path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}
