package shelf

import (
	"context"
	"errors"
	"fmt"

	"shelf/internal/model"
)

// Status is the outcome of reconciling one library against the live
// filesystem and permission state.
type Status int

const (
	// StatusRestored: the capability verified silently and the directory still
	// holds matching files; the library is fully usable.
	StatusRestored Status = iota

	// StatusNeedsReconnection: the capability is absent, denied, or otherwise
	// unusable. Only an explicit user reconnect exits this state.
	StatusNeedsReconnection

	// StatusEmpty: the capability verified but the directory holds no matching
	// files. Persisted metadata still sets needsReconnection (the user likely
	// needs to re-point at the right directory), with emptyAtLastScan marking
	// the distinction.
	StatusEmpty

	// StatusErrored: verification or enumeration failed unexpectedly. The
	// library is kept and annotated, but no reconnection is prompted.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusRestored:
		return "restored"
	case StatusNeedsReconnection:
		return "needs-reconnection"
	case StatusEmpty:
		return "empty"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Reconciler turns a library record that was true at save time into one that
// is true now. Verification at load time is silent: elevate is never requested
// during ReconcileAll, because prompting for every stored library on every
// launch would spam the user. Elevation happens only inside Reconnect, which
// the user initiates.
type Reconciler struct {
	caps     CapabilityStore
	registry *HandleRegistry
	logger   Logger
	clock    Clock
}

func NewReconciler(caps CapabilityStore, registry *HandleRegistry, logger Logger, clock Clock) *Reconciler {
	return &Reconciler{caps: caps, registry: registry, logger: logger, clock: clock}
}

// ReconcileAll reconciles every library in recorded order, one at a time so
// any permission interaction stays predictable. One library's failure never
// blocks or fails another's: each outcome is contained in that library's
// metadata.
func (r *Reconciler) ReconcileAll(ctx context.Context, libs []*model.Library) map[string]Status {
	statuses := make(map[string]Status, len(libs))
	for _, lib := range libs {
		statuses[lib.ID] = r.Reconcile(ctx, lib)
	}
	return statuses
}

// Reconcile runs the load-time state machine for one library:
// Verifying -> Restored | NeedsReconnection | Empty | Errored.
// The library is mutated in place; the caller persists it.
func (r *Reconciler) Reconcile(ctx context.Context, lib *model.Library) Status {
	if lib.Metadata == nil {
		lib.Metadata = model.Metadata{}
	}

	ref := r.registry.Dir(lib.ID)
	if ref == nil {
		ref = r.rebuildRef(lib)
	}
	if ref == nil {
		// No session ref and no resolvable stored location. Reconnection is
		// the only way back, and we don't prompt at passive load time.
		r.logger.Debug("no usable ref for library", "id", lib.ID, "name", lib.Name)
		r.markNeedsReconnection(lib)
		return StatusNeedsReconnection
	}

	grant, err := r.caps.Verify(ctx, ref, false)
	if err != nil {
		r.logger.Warn("verification failed", "id", lib.ID, "error", err)
		r.markErrored(lib, err)
		return StatusErrored
	}
	if grant != GrantGranted {
		r.logger.Info("capability denied, library needs reconnection", "id", lib.ID, "name", lib.Name)
		r.markNeedsReconnection(lib)
		return StatusNeedsReconnection
	}

	files, err := r.caps.Enumerate(ctx, ref)
	if err != nil {
		r.logger.Warn("enumeration failed", "id", lib.ID, "error", err)
		r.markErrored(lib, err)
		return StatusErrored
	}
	if len(files) == 0 {
		r.logger.Info("directory empty at rescan, library needs reconnection", "id", lib.ID, "name", lib.Name)
		lib.Metadata.SetBool(model.MetaEmptyAtLastScan, true)
		r.markNeedsReconnection(lib)
		return StatusEmpty
	}

	r.restore(lib, files)
	lib.Metadata.SetTime(model.MetaLastRestored, r.clock.Now())
	r.logger.Info("library restored", "id", lib.ID, "name", lib.Name, "files", len(files))
	return StatusRestored
}

// Reconnect runs the user-initiated reconnection flow: acquire a fresh
// directory capability (may prompt), verify with elevation, enumerate, and
// restore. On cancellation or failure the library is left untouched; callers
// distinguish outcomes via the error taxonomy.
func (r *Reconciler) Reconnect(ctx context.Context, lib *model.Library, picker DirectoryPicker) error {
	ref, err := picker.PickDirectory(ctx)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			r.logger.Debug("reconnect cancelled", "id", lib.ID)
			return ErrCancelled
		}
		return fmt.Errorf("acquiring directory: %w", err)
	}

	grant, err := r.caps.Verify(ctx, ref, true)
	if err != nil {
		return fmt.Errorf("verifying directory: %w", err)
	}
	if grant != GrantGranted {
		return fmt.Errorf("reconnecting %q: %w", lib.Name, ErrPermissionDenied)
	}

	files, err := r.caps.Enumerate(ctx, ref)
	if err != nil {
		return fmt.Errorf("enumerating directory: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("directory %q contains no PDF files: %w", ref.Name(), ErrValidation)
	}

	if lib.Metadata == nil {
		lib.Metadata = model.Metadata{}
	}
	r.registry.SetDir(lib.ID, ref)
	lib.Metadata.SetString(model.MetaSourcePath, ref.Identity())
	r.restore(lib, files)
	lib.Metadata.SetTime(model.MetaLastReconnected, r.clock.Now())
	count, _ := lib.Metadata.GetInt(model.MetaReconnectCount)
	lib.Metadata.SetInt(model.MetaReconnectCount, count+1)

	r.logger.Info("library reconnected", "id", lib.ID, "name", lib.Name, "files", len(files))
	return nil
}

// rebuildRef re-establishes a session ref from the library's stored location.
// Only the locator string is persisted, never the handle; a location that no
// longer resolves leaves the library for explicit reconnection.
func (r *Reconciler) rebuildRef(lib *model.Library) DirRef {
	path, ok := lib.Metadata.GetString(model.MetaSourcePath)
	if !ok || path == "" {
		return nil
	}
	ref, err := r.caps.Resolve(path)
	if err != nil {
		r.logger.Debug("stored location does not resolve", "id", lib.ID, "path", path, "error", err)
		return nil
	}
	r.registry.SetDir(lib.ID, ref)
	return ref
}

// restore replaces the library's files with a fresh enumeration and clears the
// failure flags.
func (r *Reconciler) restore(lib *model.Library, files []EnumeratedFile) {
	entries := make([]model.FileEntry, len(files))
	for i, f := range files {
		entries[i] = f.Entry
	}
	lib.Files = entries
	r.registry.SetFiles(lib.ID, files)

	lib.Metadata.SetBool(model.MetaNeedsReconnection, false)
	lib.Metadata.SetBool(model.MetaHasErrors, false)
	lib.Metadata.SetBool(model.MetaEmptyAtLastScan, false)
	lib.Metadata.SetInt(model.MetaFileCount, int64(len(entries)))
	lib.Metadata.SetInt(model.MetaTotalSize, lib.TotalSize())
	lib.Metadata.SetTime(model.MetaLastModified, r.clock.Now())
}

// markNeedsReconnection flags the library without touching its stored files:
// what we knew at save time is still the best record we have.
func (r *Reconciler) markNeedsReconnection(lib *model.Library) {
	lib.Metadata.SetBool(model.MetaNeedsReconnection, true)
}

func (r *Reconciler) markErrored(lib *model.Library, cause error) {
	lib.Metadata.SetBool(model.MetaHasErrors, true)
	lib.Metadata.SetString(model.MetaErrorMessage, cause.Error())
	lib.Metadata.SetTime(model.MetaLastError, r.clock.Now())
}
