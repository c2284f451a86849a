package shadow

import (
	"fmt"
	"os"

	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"

	"shelf/internal/config"
	"shelf/internal/shelf"
)

// NewStoreFromConfig creates a ShadowStore implementation based on the shadow
// config type.
func NewStoreFromConfig(cfg config.ShadowConfig, logger shelf.Logger, clock shelf.Clock) (*Store, error) {
	switch cfg.Type {
	case "leveldb":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for leveldb shadow store")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating shadow store directory: %w", err)
		}
		return NewLevelDBStore(cfg.DataDir, logger, clock)
	case "memory":
		return NewStore(dssync.MutexWrap(ds.NewMapDatastore()), logger, clock), nil
	default:
		return nil, fmt.Errorf("unknown shadow store type: %s", cfg.Type)
	}
}
