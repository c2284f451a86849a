package shadow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"

	"shelf/internal/model"
	"shelf/internal/shelf"
)

func newTestStore(t *testing.T) (*Store, ds.Datastore) {
	t.Helper()

	raw := dssync.MutexWrap(ds.NewMapDatastore())
	s := NewStore(raw, shelf.NewNopLogger(), shelf.RealClock{})
	t.Cleanup(func() {
		s.Close()
	})
	return s, raw
}

func testLibrary(id, name string, created time.Time) *model.Library {
	lib := &model.Library{
		ID:   id,
		Name: name,
		Files: []model.FileEntry{
			{Name: "a.pdf", Size: 100, LastModified: created},
		},
		CreatedAt:    created,
		LastAccessed: created,
		Metadata:     model.Metadata{},
	}
	lib.Metadata.SetInt(model.MetaFileCount, 1)
	lib.Metadata.SetInt(model.MetaTotalSize, 100)
	return lib
}

func TestStore_PutGetAll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	t1 := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	s.Put(ctx, testLibrary("lib-b", "Papers", t2))
	s.Put(ctx, testLibrary("lib-a", "Notes", t1))

	libs := s.GetAll(ctx)
	if len(libs) != 2 {
		t.Fatalf("GetAll() returned %d libraries, want 2", len(libs))
	}

	// Ordered by creation time.
	if libs[0].ID != "lib-a" || libs[1].ID != "lib-b" {
		t.Errorf("order = %s, %s; want lib-a, lib-b", libs[0].ID, libs[1].ID)
	}
	if libs[0].Name != "Notes" {
		t.Errorf("Name = %q, want %q", libs[0].Name, "Notes")
	}
	if n, _ := libs[0].Metadata.GetInt(model.MetaFileCount); n != 1 {
		t.Errorf("metadata fileCount = %d, want 1", n)
	}
}

func TestStore_PutWritesBothNamespaces(t *testing.T) {
	s, raw := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, testLibrary("lib-1", "Notes", time.Now()))

	for _, k := range []ds.Key{enhancedKey("lib-1"), legacyKey("lib-1")} {
		ok, err := raw.Has(ctx, k)
		if err != nil {
			t.Fatalf("Has(%s) error = %v", k, err)
		}
		if !ok {
			t.Errorf("key %s missing after Put", k)
		}
	}
}

func TestStore_LegacyOnlyRecordIsUpgraded(t *testing.T) {
	s, raw := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	legacy := legacyRecord{
		ID:   "old-1",
		Name: "Archive",
		Files: []model.FileEntry{
			{Name: "x.pdf", Size: 10, LastModified: created},
			{Name: "y.pdf", Size: 20, LastModified: created},
		},
		CreatedAt: created,
	}
	enc, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := raw.Put(ctx, legacyKey("old-1"), enc); err != nil {
		t.Fatalf("raw put: %v", err)
	}

	libs := s.GetAll(ctx)
	if len(libs) != 1 {
		t.Fatalf("GetAll() returned %d libraries, want 1", len(libs))
	}
	got := libs[0]
	if got.ID != "old-1" || got.Name != "Archive" {
		t.Errorf("upgraded record = %s/%s, want old-1/Archive", got.ID, got.Name)
	}
	if n, _ := got.Metadata.GetInt(model.MetaFileCount); n != 2 {
		t.Errorf("derived fileCount = %d, want 2", n)
	}
	if n, _ := got.Metadata.GetInt(model.MetaTotalSize); n != 30 {
		t.Errorf("derived totalSize = %d, want 30", n)
	}
}

func TestStore_EnhancedRecordPreferredOverLegacy(t *testing.T) {
	s, raw := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	s.Put(ctx, testLibrary("lib-1", "Current", created))

	// Plant a stale legacy record under the same id.
	stale := legacyRecord{ID: "lib-1", Name: "Stale", CreatedAt: created}
	enc, err := json.Marshal(stale)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := raw.Put(ctx, legacyKey("lib-1"), enc); err != nil {
		t.Fatalf("raw put: %v", err)
	}

	libs := s.GetAll(ctx)
	if len(libs) != 1 {
		t.Fatalf("GetAll() returned %d libraries, want 1", len(libs))
	}
	if libs[0].Name != "Current" {
		t.Errorf("Name = %q, want the enhanced record's %q", libs[0].Name, "Current")
	}
}

func TestStore_Delete(t *testing.T) {
	s, raw := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, testLibrary("lib-1", "Notes", time.Now()))
	s.Delete(ctx, "lib-1")

	for _, k := range []ds.Key{enhancedKey("lib-1"), legacyKey("lib-1")} {
		ok, err := raw.Has(ctx, k)
		if err != nil {
			t.Fatalf("Has(%s) error = %v", k, err)
		}
		if ok {
			t.Errorf("key %s still present after Delete", k)
		}
	}

	// Deleting an absent id must not panic or log-storm.
	s.Delete(ctx, "missing")
}

func TestStore_Wipe(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, testLibrary("lib-1", "Notes", time.Now()))
	s.Put(ctx, testLibrary("lib-2", "Papers", time.Now()))

	s.Wipe(ctx)

	if libs := s.GetAll(ctx); len(libs) != 0 {
		t.Errorf("GetAll() after Wipe returned %d libraries, want 0", len(libs))
	}
}

func TestStore_SkipsUnreadableRecords(t *testing.T) {
	s, raw := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, testLibrary("lib-1", "Notes", time.Now()))
	if err := raw.Put(ctx, enhancedKey("junk"), []byte("not json")); err != nil {
		t.Fatalf("raw put: %v", err)
	}

	libs := s.GetAll(ctx)
	if len(libs) != 1 || libs[0].ID != "lib-1" {
		t.Errorf("GetAll() = %d records, want only lib-1", len(libs))
	}
}

// failingDatastore errors on every operation.
type failingDatastore struct{}

var errBroken = errors.New("datastore broken")

func (failingDatastore) Get(context.Context, ds.Key) ([]byte, error)       { return nil, errBroken }
func (failingDatastore) Has(context.Context, ds.Key) (bool, error)         { return false, errBroken }
func (failingDatastore) GetSize(context.Context, ds.Key) (int, error)      { return 0, errBroken }
func (failingDatastore) Query(context.Context, dsq.Query) (dsq.Results, error) {
	return nil, errBroken
}
func (failingDatastore) Put(context.Context, ds.Key, []byte) error { return errBroken }
func (failingDatastore) Delete(context.Context, ds.Key) error      { return errBroken }
func (failingDatastore) Sync(context.Context, ds.Key) error        { return errBroken }
func (failingDatastore) Close() error                              { return nil }

func TestStore_NeverRaises(t *testing.T) {
	s := NewStore(failingDatastore{}, shelf.NewNopLogger(), shelf.RealClock{})
	ctx := context.Background()

	// None of these may panic or surface an error.
	s.Put(ctx, testLibrary("lib-1", "Notes", time.Now()))
	s.Delete(ctx, "lib-1")
	s.Wipe(ctx)

	if libs := s.GetAll(ctx); len(libs) != 0 {
		t.Errorf("GetAll() on broken datastore returned %d libraries, want 0", len(libs))
	}
}
