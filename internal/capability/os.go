// Package capability bridges the abstract library model and the host's live
// filesystem access primitives: acquiring directory handles, verifying that
// access is still granted, and enumerating matching files.
package capability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"shelf/internal/model"
	"shelf/internal/shelf"
)

// dirRef is the session-local directory capability. The absolute path is the
// ref's identity for the session; it is never persisted.
type dirRef struct {
	path string
}

func (r dirRef) Identity() string { return r.path }
func (r dirRef) Name() string     { return filepath.Base(r.path) }

// fileRef is the per-file capability.
type fileRef struct {
	path string
}

func (r fileRef) Identity() string { return r.path }
func (r fileRef) Name() string     { return filepath.Base(r.path) }

// OSStore implements shelf.CapabilityStore against the real filesystem.
type OSStore struct {
	extensions []string
	logger     shelf.Logger
	clock      shelf.Clock

	mu    sync.Mutex
	cache map[string]shelf.Grant // "identity|elevate" -> result
}

// NewOSStore creates a capability store matching the given extensions
// (leading dot, case-insensitive). An empty list defaults to ".pdf".
func NewOSStore(extensions []string, logger shelf.Logger, clock shelf.Clock) *OSStore {
	if len(extensions) == 0 {
		extensions = []string{".pdf"}
	}
	return &OSStore{
		extensions: extensions,
		logger:     logger,
		clock:      clock,
		cache:      make(map[string]shelf.Grant),
	}
}

// Resolve validates a raw path and returns a directory capability for it.
func (s *OSStore) Resolve(rawPath string) (shelf.DirRef, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absPath)
	}

	return dirRef{path: absPath}, nil
}

// Verify checks whether the directory behind ref is still accessible.
// Results are cached per (ref identity, elevate) for the session so repeated
// passive probes stay cheap. elevate=true drops any cached denial and probes
// again, the closest OS analogue of actively re-requesting permission.
// Denied is an outcome, not an error; errors mean the probe itself broke.
func (s *OSStore) Verify(ctx context.Context, ref shelf.DirRef, elevate bool) (shelf.Grant, error) {
	if err := ctx.Err(); err != nil {
		return shelf.GrantDenied, err
	}

	key := cacheKey(ref, elevate)

	s.mu.Lock()
	if elevate {
		// Re-requesting access invalidates whatever the passive probe saw.
		delete(s.cache, cacheKey(ref, false))
		delete(s.cache, key)
	} else if grant, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return grant, nil
	}
	s.mu.Unlock()

	grant, err := s.probe(ref)
	if err != nil {
		return shelf.GrantDenied, err
	}

	s.mu.Lock()
	s.cache[key] = grant
	s.mu.Unlock()
	return grant, nil
}

// probe checks that the ref still points at a readable directory.
func (s *OSStore) probe(ref shelf.DirRef) (shelf.Grant, error) {
	info, err := os.Stat(ref.Identity())
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return shelf.GrantDenied, nil
		}
		return shelf.GrantDenied, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return shelf.GrantDenied, nil
	}

	f, err := os.Open(ref.Identity())
	if err != nil {
		if os.IsPermission(err) {
			return shelf.GrantDenied, nil
		}
		return shelf.GrantDenied, fmt.Errorf("opening directory: %w", err)
	}
	f.Close()
	return shelf.GrantGranted, nil
}

// Enumerate lists the immediate children of ref that are regular files with a
// matching extension. A single unreadable entry is logged and skipped; it
// must not fail the whole scan. File size and modification time default to
// zero / scan time when the filesystem withholds them.
func (s *OSStore) Enumerate(ctx context.Context, ref shelf.DirRef) ([]shelf.EnumeratedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(ref.Identity())
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var files []shelf.EnumeratedFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !s.matches(entry.Name()) {
			continue
		}

		fe := model.FileEntry{Name: entry.Name(), LastModified: s.clock.Now()}
		info, err := entry.Info()
		if err != nil {
			// Listable but not statable. Keep the reference with defaults
			// rather than losing the file.
			s.logger.Warn("could not stat entry, using defaults", "name", entry.Name(), "error", err)
		} else {
			fe.Size = info.Size()
			fe.LastModified = info.ModTime()
		}

		files = append(files, shelf.EnumeratedFile{
			Entry: fe,
			Ref:   fileRef{path: filepath.Join(ref.Identity(), entry.Name())},
		})
	}
	return files, nil
}

// ClearCache drops all cached verification results.
func (s *OSStore) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]shelf.Grant)
}

func (s *OSStore) matches(name string) bool {
	ext := filepath.Ext(name)
	for _, want := range s.extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func cacheKey(ref shelf.DirRef, elevate bool) string {
	if elevate {
		return ref.Identity() + "|elevated"
	}
	return ref.Identity() + "|passive"
}

// Compile-time check that OSStore implements shelf.CapabilityStore.
var _ shelf.CapabilityStore = (*OSStore)(nil)
