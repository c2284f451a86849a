package shelf

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"shelf/internal/model"
)

// Service is the orchestration layer for the persistent library state: it
// owns the write-through path across both stores, the startup reconciliation
// sequence, and the user-driven operations the display layer invokes.
type Service struct {
	primary    PrimaryStore
	shadow     ShadowStore
	caps       CapabilityStore
	registry   *HandleRegistry
	reconciler *Reconciler
	health     *HealthMonitor
	logger     Logger
	clock      Clock
	idgen      IDGenerator

	// Tracks in-flight fire-and-forget shadow writes so Close can drain them.
	wg sync.WaitGroup
}

// NewService creates a Service with the provided dependencies.
func NewService(primary PrimaryStore, shadow ShadowStore, caps CapabilityStore, logger Logger, clock Clock, idgen IDGenerator) *Service {
	registry := NewHandleRegistry()
	return &Service{
		primary:    primary,
		shadow:     shadow,
		caps:       caps,
		registry:   registry,
		reconciler: NewReconciler(caps, registry, logger, clock),
		health:     NewHealthMonitor(primary, shadow, logger),
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
	}
}

// Registry exposes the session handle registry (read paths and tests).
func (s *Service) Registry() *HandleRegistry { return s.registry }

// AddLibrary creates a new library from a user-selected directory: acquire a
// capability (may prompt), verify with elevation, enumerate, and persist.
// A directory with no matching files is rejected with ErrValidation and
// nothing is persisted. A dismissed picker returns ErrCancelled.
func (s *Service) AddLibrary(ctx context.Context, picker DirectoryPicker) (*model.Library, error) {
	ref, err := picker.PickDirectory(ctx)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("acquiring directory: %w", err)
	}

	grant, err := s.caps.Verify(ctx, ref, true)
	if err != nil {
		return nil, fmt.Errorf("verifying directory: %w", err)
	}
	if grant != GrantGranted {
		return nil, fmt.Errorf("adding %q: %w", ref.Name(), ErrPermissionDenied)
	}

	files, err := s.caps.Enumerate(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("enumerating directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("directory %q contains no PDF files: %w", ref.Name(), ErrValidation)
	}

	now := s.clock.Now()
	lib := &model.Library{
		ID:           s.idgen.New(),
		Name:         ref.Name(),
		CreatedAt:    now,
		LastAccessed: now,
		Metadata:     model.Metadata{},
	}
	lib.Metadata.SetString(model.MetaSourcePath, ref.Identity())
	s.registry.SetDir(lib.ID, ref)
	s.reconciler.restore(lib, files)

	if err := s.persist(ctx, lib); err != nil {
		s.registry.Forget(lib.ID)
		return nil, err
	}

	s.logger.Info("library created", "id", lib.ID, "name", lib.Name, "files", len(files))
	return lib, nil
}

// LoadLibraries runs the startup sequence: health check, recovering load,
// per-library reconciliation, best-effort persistence of the reconciled state.
// It never fails; worst case is an empty result.
func (s *Service) LoadLibraries(ctx context.Context) ([]*model.Library, map[string]Status) {
	s.health.EnsureHealthy(ctx)
	libs := s.health.LoadAll(ctx)
	statuses := s.reconciler.ReconcileAll(ctx, libs)

	for _, lib := range libs {
		lib.LastAccessed = s.clock.Now()
		if err := s.persist(ctx, lib); err != nil {
			// Reconciliation results are advisory; failing to persist them
			// must not fail the load.
			s.logger.Warn("persisting reconciled library failed", "id", lib.ID, "error", err)
		}
	}

	return libs, statuses
}

// ReconnectLibrary runs the explicit reconnection flow for one library.
// On cancellation the library is untouched and ErrCancelled is returned; on
// validation or permission failure the stored record is likewise unchanged.
func (s *Service) ReconnectLibrary(ctx context.Context, picker DirectoryPicker, id string) (*model.Library, error) {
	lib, err := s.findLibrary(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.reconciler.Reconnect(ctx, lib, picker); err != nil {
		return nil, err
	}

	lib.LastAccessed = s.clock.Now()
	if err := s.persist(ctx, lib); err != nil {
		return nil, err
	}
	return lib, nil
}

// DeleteLibrary removes a library from every storage substrate and drops its
// session refs.
func (s *Service) DeleteLibrary(ctx context.Context, id string) error {
	if _, err := s.findLibrary(ctx, id); err != nil {
		return err
	}
	if err := s.primary.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting library: %w", err)
	}
	s.shadow.Delete(ctx, id)
	s.registry.Forget(id)
	s.logger.Info("library deleted", "id", id)
	return nil
}

// ResetStorage destroys and recreates all persisted state. Deliberate and
// irreversible; the caller is responsible for confirming with the user.
func (s *Service) ResetStorage(ctx context.Context) error {
	if err := s.health.Reset(ctx); err != nil {
		return fmt.Errorf("resetting storage: %w", err)
	}
	s.registry.Clear()
	s.caps.ClearCache()
	return nil
}

// Flush blocks until all dispatched shadow writes have settled.
func (s *Service) Flush() { s.wg.Wait() }

// Close drains pending shadow writes and closes both stores.
func (s *Service) Close() error {
	s.wg.Wait()
	err := s.primary.Close()
	if serr := s.shadow.Close(); serr != nil && err == nil {
		err = serr
	}
	return err
}

// persist writes a library through both stores. The primary write is awaited
// and its outcome is the caller's outcome; the shadow write is dispatched
// without blocking and its failure is only ever logged. The two stores may
// transiently disagree; the shadow is read only when the primary is unusable,
// so the window is harmless.
func (s *Service) persist(ctx context.Context, lib *model.Library) error {
	prov := lib.Metadata.Sub(model.MetaPersistence)
	prov.SetTime(model.PersistSavedAt, s.clock.Now())
	prov.SetString(model.PersistStore, "primary")
	prov.SetInt(model.PersistSchemaVersion, int64(s.primary.SchemaVersion()))
	saves, _ := prov.GetInt(model.PersistSaveCount)
	prov.SetInt(model.PersistSaveCount, saves+1)

	if err := s.primary.Put(ctx, lib); err != nil {
		return fmt.Errorf("saving library: %w", err)
	}

	mirror := lib.Clone()
	shadowCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.shadow.Put(shadowCtx, mirror)
	}()
	return nil
}

// findLibrary loads the stored record for one ID without reconciling.
func (s *Service) findLibrary(ctx context.Context, id string) (*model.Library, error) {
	libs, err := s.primary.GetAll(ctx)
	if err != nil {
		libs = s.health.LoadAll(ctx)
	}
	for _, lib := range libs {
		if lib.ID == id {
			return lib, nil
		}
	}
	return nil, fmt.Errorf("library %q: %w", id, ErrNotFound)
}
