package shelf

import (
	"context"

	"shelf/internal/model"
)

// PrimaryStore is the preferred persistence substrate: durable, queryable,
// versioned with an explicit migration protocol. Implementations report
// failures through the sentinel taxonomy (ErrStoreUnavailable,
// ErrStoreCorrupted, ErrStoreBusy) so the health monitor can pick the right
// recovery path.
type PrimaryStore interface {
	// Put upserts a library by ID. The persisted record carries only
	// serializable fields; metadata is merged non-destructively with whatever
	// the store already holds for that ID.
	Put(ctx context.Context, lib *model.Library) error

	// GetAll returns every stored record in recorded order.
	GetAll(ctx context.Context) ([]*model.Library, error)

	// Delete removes a library by ID. Deleting an unknown ID is a no-op.
	Delete(ctx context.Context, id string) error

	// HealthCheck is a cheap probe (a count). It never fails: any underlying
	// error converts to false.
	HealthCheck(ctx context.Context) bool

	// Recreate destroys the backing store entirely and reopens it, re-running
	// schema creation from scratch. Data-losing for this store only.
	Recreate(ctx context.Context) error

	// SchemaVersion reports the store's current schema version, 0 if unknown.
	SchemaVersion() uint

	Close() error
}

// ShadowStore is the capability-free mirror of every library, held in a
// simpler always-available key-value medium and read only when the primary
// store is unusable. Its operations never fail: every error degrades to a
// no-op (or zero result) with a logged warning, because this store must never
// be the reason the application breaks.
type ShadowStore interface {
	Put(ctx context.Context, lib *model.Library)
	GetAll(ctx context.Context) []*model.Library
	Delete(ctx context.Context, id string)

	// Wipe removes every record from all namespaces. Used only by the
	// explicit user-invoked storage reset.
	Wipe(ctx context.Context)

	Close() error
}
