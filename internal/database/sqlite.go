package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"shelf/internal/database/migrations"
	"shelf/internal/model"
	"shelf/internal/shelf"
)

// connState tracks the store's open/upgrade lifecycle. Exactly one connection
// exists per store; while an upgrade is in flight new operations wait for
// Ready instead of racing it or opening a second connection.
type connState int

const (
	stateClosed connState = iota
	stateOpening
	stateUpgrading
	stateReady
)

// Bounds for waiting on a store that is opening or upgrading.
const (
	readyRetries = 10
	readyBackoff = 50 * time.Millisecond
)

// SQLiteStore implements shelf.PrimaryStore on a SQLite database with an
// embedded migration protocol. Libraries are stored one row each, with files
// and metadata as JSON columns; capability refs are absent by construction
// because the record type carries none.
type SQLiteStore struct {
	mu      sync.Mutex
	state   connState
	db      *sql.DB
	path    string
	version uint
	logger  shelf.Logger
}

// NewSQLiteStore opens (or creates) the database at path and brings its
// schema to the latest version. path can be ":memory:" for tests.
//
// The store is returned even when opening fails, so the caller can attempt
// Recreate on a corrupted database. A blocked open (another connection holds
// the file) is retried with backoff and then reported as shelf.ErrStoreBusy,
// distinct from corruption.
func NewSQLiteStore(path string, logger shelf.Logger) (*SQLiteStore, error) {
	s := &SQLiteStore{path: path, logger: logger}

	var err error
	backoff := readyBackoff
	for attempt := 0; attempt < readyRetries; attempt++ {
		if err = s.open(); !errors.Is(err, shelf.ErrStoreBusy) {
			break
		}
		s.logger.Warn("database busy, retrying open", "attempt", attempt+1)
		time.Sleep(backoff)
		backoff *= 2
	}
	return s, err
}

// open runs the lifecycle Closed -> Opening -> Upgrading -> Ready.
// Callers hold no lock; open takes it itself.
func (s *SQLiteStore) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = stateOpening
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		s.state = stateClosed
		return s.classify(fmt.Errorf("opening database: %w", err))
	}

	// A second open connection on :memory: would see a different database,
	// and the migration driver shares this connection, so keep exactly one.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		s.state = stateClosed
		return s.classify(fmt.Errorf("enabling foreign keys: %w", err))
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		s.state = stateClosed
		return s.classify(fmt.Errorf("setting busy timeout: %w", err))
	}

	s.state = stateUpgrading
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		s.state = stateClosed
		return s.classify(fmt.Errorf("migrating database: %w", err))
	}
	// MigrateUp is a no-op on a database that is dirty-free and ahead of this
	// binary's migrations; the status check catches that case.
	if err := migrations.CheckStatus(db); err != nil {
		db.Close()
		s.state = stateClosed
		return s.classify(fmt.Errorf("checking schema status: %w", err))
	}
	if err := backfillMetadata(db); err != nil {
		db.Close()
		s.state = stateClosed
		return s.classify(fmt.Errorf("backfilling records: %w", err))
	}

	version, _, err := migrations.Version(db)
	if err != nil {
		s.logger.Warn("could not read schema version", "error", err)
	}

	s.db = db
	s.version = version
	s.state = stateReady
	return nil
}

// conn returns the shared connection once the store is Ready, waiting with
// bounded backoff while an open or upgrade is in flight.
func (s *SQLiteStore) conn(ctx context.Context) (*sql.DB, error) {
	backoff := readyBackoff
	for attempt := 0; ; attempt++ {
		s.mu.Lock()
		state, db := s.state, s.db
		s.mu.Unlock()

		switch state {
		case stateReady:
			return db, nil
		case stateClosed:
			return nil, shelf.ErrStoreUnavailable
		}

		if attempt >= readyRetries {
			return nil, fmt.Errorf("store not ready after %d attempts: %w", attempt, shelf.ErrStoreBusy)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// Put upserts a library by ID. Metadata is merged non-destructively with the
// stored record: fields the new write doesn't mention survive.
func (s *SQLiteStore) Put(ctx context.Context, lib *model.Library) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	merged := lib.Metadata
	var existingMeta string
	err = tx.QueryRowContext(ctx, "SELECT metadata FROM libraries WHERE id = ?", lib.ID).Scan(&existingMeta)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// New record, nothing to merge.
	case err != nil:
		return s.classify(fmt.Errorf("reading existing metadata: %w", err))
	default:
		base := model.Metadata{}
		if uerr := json.Unmarshal([]byte(existingMeta), &base); uerr != nil {
			s.logger.Warn("stored metadata unreadable, replacing", "id", lib.ID, "error", uerr)
			base = model.Metadata{}
		}
		merged = base.Merge(lib.Metadata)
	}

	filesJSON, err := json.Marshal(lib.Files)
	if err != nil {
		return fmt.Errorf("encoding files: %w", err)
	}
	metaJSON, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO libraries (id, name, files, created_at, last_accessed, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			files = excluded.files,
			last_accessed = excluded.last_accessed,
			metadata = excluded.metadata`,
		lib.ID, lib.Name, string(filesJSON),
		formatTime(lib.CreatedAt), formatTime(lib.LastAccessed), string(metaJSON))
	if err != nil {
		return s.classify(fmt.Errorf("upserting library: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return s.classify(fmt.Errorf("committing transaction: %w", err))
	}

	lib.Metadata = merged
	return nil
}

// GetAll returns every stored library in recorded order.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]*model.Library, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT id, name, files, created_at, last_accessed, metadata FROM libraries ORDER BY rowid")
	if err != nil {
		return nil, s.classify(fmt.Errorf("querying libraries: %w", err))
	}
	defer rows.Close()

	var libs []*model.Library
	for rows.Next() {
		var lib model.Library
		var filesJSON, createdAt, lastAccessed, metaJSON string
		if err := rows.Scan(&lib.ID, &lib.Name, &filesJSON, &createdAt, &lastAccessed, &metaJSON); err != nil {
			return nil, s.classify(fmt.Errorf("scanning library row: %w", err))
		}
		if err := json.Unmarshal([]byte(filesJSON), &lib.Files); err != nil {
			s.logger.Warn("stored files column unreadable", "id", lib.ID, "error", err)
			lib.Files = nil
		}
		lib.Metadata = model.Metadata{}
		if err := json.Unmarshal([]byte(metaJSON), &lib.Metadata); err != nil {
			s.logger.Warn("stored metadata column unreadable", "id", lib.ID, "error", err)
		}
		lib.CreatedAt = parseTime(createdAt)
		lib.LastAccessed = parseTime(lastAccessed)
		libs = append(libs, &lib)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(fmt.Errorf("iterating library rows: %w", err))
	}

	return libs, nil
}

// Delete removes a library by ID. Unknown IDs are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM libraries WHERE id = ?", id); err != nil {
		return s.classify(fmt.Errorf("deleting library: %w", err))
	}
	return nil
}

// HealthCheck probes the store with a count. Never fails: any error is false.
func (s *SQLiteStore) HealthCheck(ctx context.Context) bool {
	db, err := s.conn(ctx)
	if err != nil {
		return false
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM libraries").Scan(&count); err != nil {
		s.logger.Warn("health check failed", "error", err)
		return false
	}
	return true
}

// Recreate closes the connection, deletes the backing database entirely, and
// reopens it, re-running schema creation from scratch. Data-losing for this
// store only.
func (s *SQLiteStore) Recreate(ctx context.Context) error {
	s.mu.Lock()
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	s.state = stateClosed
	s.mu.Unlock()

	if s.path != ":memory:" {
		for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing database file %s: %w", p, err)
			}
		}
	}

	s.logger.Info("recreating primary store", "path", s.path)
	return s.open()
}

// SchemaVersion reports the store's schema version, 0 if unknown.
func (s *SQLiteStore) SchemaVersion() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateClosed
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// classify maps an engine error onto the shelf error taxonomy so callers can
// branch with errors.Is. Corruption and blocked-open are recognized
// specifically; everything else is ErrStoreUnavailable.
func (s *SQLiteStore) classify(err error) error {
	if err == nil {
		return nil
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", shelf.ErrStoreBusy, err)
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return fmt.Errorf("%w: %v", shelf.ErrStoreCorrupted, err)
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "database is locked"):
		return fmt.Errorf("%w: %v", shelf.ErrStoreBusy, err)
	case strings.Contains(msg, "database disk image is malformed"),
		strings.Contains(msg, "file is not a database"),
		strings.Contains(msg, "Dirty database"):
		return fmt.Errorf("%w: %v", shelf.ErrStoreCorrupted, err)
	}
	return fmt.Errorf("%w: %v", shelf.ErrStoreUnavailable, err)
}

// backfillMetadata visits every record after a migration and fills newly
// introduced metadata fields with defaults derived from the record itself.
// Fields already present are never overwritten, so running it twice produces
// the same state as running it once.
func backfillMetadata(db *sql.DB) error {
	rows, err := db.Query("SELECT id, files, metadata FROM libraries")
	if err != nil {
		return fmt.Errorf("querying records for backfill: %w", err)
	}
	defer rows.Close()

	type update struct {
		id   string
		meta string
	}
	var updates []update

	for rows.Next() {
		var id, filesJSON, metaJSON string
		if err := rows.Scan(&id, &filesJSON, &metaJSON); err != nil {
			return fmt.Errorf("scanning record for backfill: %w", err)
		}

		var files []model.FileEntry
		if err := json.Unmarshal([]byte(filesJSON), &files); err != nil {
			files = nil
		}
		meta := model.Metadata{}
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			meta = model.Metadata{}
		}

		changed := false
		if _, ok := meta.GetInt(model.MetaFileCount); !ok {
			meta.SetInt(model.MetaFileCount, int64(len(files)))
			changed = true
		}
		if _, ok := meta.GetInt(model.MetaTotalSize); !ok {
			var total int64
			for _, f := range files {
				total += f.Size
			}
			meta.SetInt(model.MetaTotalSize, total)
			changed = true
		}
		if !changed {
			continue
		}

		encoded, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encoding backfilled metadata: %w", err)
		}
		updates = append(updates, update{id: id, meta: string(encoded)})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating records for backfill: %w", err)
	}

	for _, u := range updates {
		if _, err := db.Exec("UPDATE libraries SET metadata = ? WHERE id = ?", u.meta, u.id); err != nil {
			return fmt.Errorf("writing backfilled metadata: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Compile-time check that SQLiteStore implements shelf.PrimaryStore.
var _ shelf.PrimaryStore = (*SQLiteStore)(nil)
