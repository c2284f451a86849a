package shelf

import (
	"context"
	"errors"

	"shelf/internal/model"
)

// HealthMonitor keeps the primary store usable despite underlying corruption.
// Recovery is destructive for the primary store only; the shadow store is the
// safety net and is never touched by automatic recovery.
type HealthMonitor struct {
	primary PrimaryStore
	shadow  ShadowStore
	logger  Logger
}

func NewHealthMonitor(primary PrimaryStore, shadow ShadowStore, logger Logger) *HealthMonitor {
	return &HealthMonitor{primary: primary, shadow: shadow, logger: logger}
}

// EnsureHealthy probes the primary store and attempts destructive recreation
// when the probe fails. Returns false only when recreation itself failed; the
// caller still proceeds, degrading to the shadow store on read.
func (m *HealthMonitor) EnsureHealthy(ctx context.Context) bool {
	if m.primary.HealthCheck(ctx) {
		return true
	}

	m.logger.Warn("primary store failed health check, recreating")
	if err := m.primary.Recreate(ctx); err != nil {
		m.logger.Error("primary store recreation failed", "error", err)
		return false
	}
	return m.primary.HealthCheck(ctx)
}

// LoadAll reads every library, recovering as needed. The sequence never fails:
// corruption or unavailability triggers one destructive recreation and one
// retried read, then the shadow store, then an empty result. The application
// must always reach a usable (even if empty) state.
func (m *HealthMonitor) LoadAll(ctx context.Context) []*model.Library {
	libs, err := m.primary.GetAll(ctx)
	if err == nil {
		return libs
	}

	switch {
	case errors.Is(err, ErrStoreCorrupted):
		m.logger.Error("primary store corrupted during load", "error", err)
	case errors.Is(err, ErrStoreBusy):
		m.logger.Warn("primary store busy during load", "error", err)
	default:
		m.logger.Error("primary store unavailable during load", "error", err)
	}

	if rerr := m.primary.Recreate(ctx); rerr != nil {
		m.logger.Error("primary store recreation failed", "error", rerr)
	} else if libs, err = m.primary.GetAll(ctx); err == nil {
		// A recreated store is empty; the shadow mirror is the better source
		// of record when it has anything at all.
		if shadowed := m.shadow.GetAll(ctx); len(shadowed) > 0 {
			m.logger.Info("recovered libraries from shadow store", "count", len(shadowed))
			return shadowed
		}
		return libs
	}

	if shadowed := m.shadow.GetAll(ctx); len(shadowed) > 0 {
		m.logger.Info("recovered libraries from shadow store", "count", len(shadowed))
		return shadowed
	}

	m.logger.Warn("no recoverable library records, starting empty")
	return nil
}

// Reset destructively recreates the primary store and wipes the shadow store.
// This is the explicit, user-confirmed recovery action; unlike automatic
// corruption recovery it clears the shadow mirror too.
func (m *HealthMonitor) Reset(ctx context.Context) error {
	if err := m.primary.Recreate(ctx); err != nil {
		return err
	}
	m.shadow.Wipe(ctx)
	m.logger.Info("storage reset complete")
	return nil
}
