package shelf

import "errors"

// Error taxonomy for the persistence and reconciliation core. Callers branch
// on these with errors.Is; operations wrap them with %w and context.
var (
	// ErrCancelled means the user dismissed a prompt. Never surfaced as an
	// error to the user; call sites treat it as a no-op.
	ErrCancelled = errors.New("cancelled by user")

	// ErrPermissionDenied means a capability exists but access is refused.
	// Recoverable only by an explicit user reconnect.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStoreUnavailable means the primary store is inaccessible. Triggers an
	// automatic recreation attempt before startup degrades further.
	ErrStoreUnavailable = errors.New("primary store unavailable")

	// ErrStoreCorrupted is the recognized corruption signature (malformed
	// database image or a dirty migration). Same recovery path as
	// ErrStoreUnavailable, logged distinctly for diagnosis.
	ErrStoreCorrupted = errors.New("primary store corrupted")

	// ErrStoreBusy means another connection holds the database (blocked open).
	// Retryable; not corruption.
	ErrStoreBusy = errors.New("primary store busy")

	// ErrValidation is a rejected user action, e.g. creating a library from a
	// directory with no matching files. Nothing is persisted.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound means no library with the given ID is recorded.
	ErrNotFound = errors.New("library not found")
)
