package testutil

import (
	"testing"

	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"

	"shelf/internal/database"
	"shelf/internal/shadow"
	"shelf/internal/shelf"
)

// NewTestDatabase creates an in-memory SQLite primary store with the schema
// migrated to the latest version. Closed automatically when the test ends.
func NewTestDatabase(t *testing.T) *database.SQLiteStore {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:", shelf.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTestShadow creates a shadow store backed by an in-memory map datastore.
func NewTestShadow(t *testing.T) *shadow.Store {
	t.Helper()

	store := shadow.NewStore(dssync.MutexWrap(ds.NewMapDatastore()), shelf.NewNopLogger(), shelf.RealClock{})
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
