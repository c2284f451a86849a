// Package shadow implements the capability-free fallback mirror of the
// library records: a flat key-value store written through on every primary
// write and read only when the primary store is unusable. Nothing in this
// package ever raises: every failure degrades to a no-op with a logged
// warning, because the store of last resort must never be the reason the
// application breaks.
package shadow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"

	"shelf/internal/model"
	"shelf/internal/shelf"
)

// Key namespaces. The enhanced namespace holds versioned records with full
// metadata; the legacy namespace holds the minimal older shape. Both are
// written on every put for backward compatibility.
const (
	enhancedPrefix = "/shelf/library"
	legacyPrefix   = "/libraries"
)

// Store implements shelf.ShadowStore on any go-datastore backend: leveldb in
// production, a map datastore in tests.
type Store struct {
	ds     ds.Datastore
	logger shelf.Logger
	clock  shelf.Clock
}

// NewLevelDBStore opens a leveldb-backed shadow store rooted at path.
func NewLevelDBStore(path string, logger shelf.Logger, clock shelf.Clock) (*Store, error) {
	d, err := dslvl.NewDatastore(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening shadow store: %w", err)
	}
	return NewStore(d, logger, clock), nil
}

// NewStore wraps an existing datastore.
func NewStore(d ds.Datastore, logger shelf.Logger, clock shelf.Clock) *Store {
	return &Store{ds: d, logger: logger, clock: clock}
}

func enhancedKey(id string) ds.Key { return ds.NewKey(enhancedPrefix + "/" + id) }
func legacyKey(id string) ds.Key   { return ds.NewKey(legacyPrefix + "/" + id) }

// Put mirrors a library into both namespaces. Failures are logged, never
// returned: the primary write already succeeded and this mirror is
// best-effort.
func (s *Store) Put(ctx context.Context, lib *model.Library) {
	if enc, err := json.Marshal(newRecord(lib, s.clock.Now())); err != nil {
		s.logger.Warn("encoding shadow record failed", "id", lib.ID, "error", err)
	} else if err := s.ds.Put(ctx, enhancedKey(lib.ID), enc); err != nil {
		s.logger.Warn("shadow write failed", "id", lib.ID, "error", err)
	}

	if enc, err := json.Marshal(newLegacyRecord(lib)); err != nil {
		s.logger.Warn("encoding legacy shadow record failed", "id", lib.ID, "error", err)
	} else if err := s.ds.Put(ctx, legacyKey(lib.ID), enc); err != nil {
		s.logger.Warn("legacy shadow write failed", "id", lib.ID, "error", err)
	}
}

// GetAll returns every mirrored library. Reads prefer the enhanced namespace;
// a library present only in the legacy namespace is upgraded on the way out.
// Failures degrade to whatever could be read, ultimately an empty result.
func (s *Store) GetAll(ctx context.Context) []*model.Library {
	found := make(map[string]*model.Library)

	s.scan(ctx, enhancedPrefix, func(id string, value []byte) {
		lib, err := decodeRecord(value)
		if err != nil {
			s.logger.Warn("skipping unreadable shadow record", "id", id, "error", err)
			return
		}
		found[lib.ID] = lib
	})

	s.scan(ctx, legacyPrefix, func(id string, value []byte) {
		if _, ok := found[id]; ok {
			return
		}
		lib, err := upgradeLegacy(value)
		if err != nil {
			s.logger.Warn("skipping unreadable legacy shadow record", "id", id, "error", err)
			return
		}
		found[lib.ID] = lib
	})

	libs := make([]*model.Library, 0, len(found))
	for _, lib := range found {
		libs = append(libs, lib)
	}
	sort.Slice(libs, func(i, j int) bool {
		if !libs[i].CreatedAt.Equal(libs[j].CreatedAt) {
			return libs[i].CreatedAt.Before(libs[j].CreatedAt)
		}
		return libs[i].ID < libs[j].ID
	})
	return libs
}

// Delete removes a library from both namespaces.
func (s *Store) Delete(ctx context.Context, id string) {
	for _, k := range []ds.Key{enhancedKey(id), legacyKey(id)} {
		if err := s.ds.Delete(ctx, k); err != nil && !errors.Is(err, ds.ErrNotFound) {
			s.logger.Warn("shadow delete failed", "key", k.String(), "error", err)
		}
	}
}

// Wipe removes every record from both namespaces.
func (s *Store) Wipe(ctx context.Context) {
	for _, prefix := range []string{enhancedPrefix, legacyPrefix} {
		s.scan(ctx, prefix, func(id string, _ []byte) {
			var k ds.Key
			if prefix == enhancedPrefix {
				k = enhancedKey(id)
			} else {
				k = legacyKey(id)
			}
			if err := s.ds.Delete(ctx, k); err != nil && !errors.Is(err, ds.ErrNotFound) {
				s.logger.Warn("shadow wipe failed", "key", k.String(), "error", err)
			}
		})
	}
	s.logger.Info("shadow store wiped")
}

// Close closes the underlying datastore.
func (s *Store) Close() error {
	return s.ds.Close()
}

// scan visits every entry under prefix, calling fn with the trailing key
// segment (the library id) and the raw value. Query failures are logged and
// the scan yields nothing.
func (s *Store) scan(ctx context.Context, prefix string, fn func(id string, value []byte)) {
	res, err := s.ds.Query(ctx, dsq.Query{Prefix: prefix})
	if err != nil {
		s.logger.Warn("shadow query failed", "prefix", prefix, "error", err)
		return
	}
	defer res.Close()

	for {
		r, ok := res.NextSync()
		if !ok {
			break
		}
		if r.Error != nil {
			s.logger.Warn("shadow query entry failed", "prefix", prefix, "error", r.Error)
			continue
		}
		id := strings.TrimPrefix(r.Key, prefix+"/")
		fn(id, r.Value)
	}
}

// Compile-time check that Store implements shelf.ShadowStore.
var _ shelf.ShadowStore = (*Store)(nil)
