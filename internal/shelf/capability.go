package shelf

import (
	"context"

	"shelf/internal/model"
)

// DirRef is an opaque, session-scoped capability for a directory. The handle
// itself never crosses a persistence boundary: a freshly loaded library has no
// ref until reconciliation repopulates the registry, either by resolving the
// record's stored locator or through an explicit user reconnect.
type DirRef interface {
	// Identity returns a stable token for this ref: the cache and registry
	// key, and the derived locator recorded in persisted metadata so a later
	// session can attempt to resolve the same directory again. Only the
	// locator string is ever persisted, never the ref.
	Identity() string

	// Name returns the base name of the directory.
	Name() string
}

// FileRef is the per-file counterpart of DirRef.
type FileRef interface {
	Identity() string
	Name() string
}

// Grant is the outcome of a permission check.
type Grant int

const (
	GrantDenied Grant = iota
	GrantGranted
)

func (g Grant) String() string {
	if g == GrantGranted {
		return "granted"
	}
	return "denied"
}

// EnumeratedFile pairs a serializable file entry with its session capability.
type EnumeratedFile struct {
	Entry model.FileEntry
	Ref   FileRef
}

// CapabilityStore bridges the library model and the host's live filesystem
// access primitives. Failures are reported as typed outcomes (grant values and
// sentinel errors), never as opaque fatal errors: the reconciliation engine
// must distinguish "user declined" from "genuinely broken".
type CapabilityStore interface {
	// Resolve rebuilds a directory capability from a persisted locator (for
	// the OS store, an absolute path recorded as derived metadata). The
	// returned ref has not been verified; callers follow up with Verify.
	Resolve(rawPath string) (DirRef, error)

	// Verify checks whether the current permission state for ref is
	// sufficient. With elevate=false this is a passive probe that never
	// prompts and never escalates. With elevate=true a cached denial is
	// discarded and access is actively re-requested. Results are cached per
	// (ref identity, elevate) for the session.
	Verify(ctx context.Context, ref DirRef, elevate bool) (Grant, error)

	// Enumerate lists the immediate children of ref that are regular files
	// with a matching extension (".pdf", case-insensitive, by default).
	// Per-entry failures are logged and excluded; one bad entry must not fail
	// the scan.
	Enumerate(ctx context.Context, ref DirRef) ([]EnumeratedFile, error)

	// ClearCache drops all cached verification results.
	ClearCache()
}

// DirectoryPicker acquires a new directory capability, possibly by prompting
// the user. A dismissed prompt returns ErrCancelled, not a generic error.
type DirectoryPicker interface {
	PickDirectory(ctx context.Context) (DirRef, error)
}
