package database

import (
	"fmt"
	"os"
	"path/filepath"

	"shelf/internal/config"
	"shelf/internal/shelf"
)

// NewStoreFromConfig creates a PrimaryStore implementation based on the
// database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig, logger shelf.Logger) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "shelf.db"), logger)
	case "memory":
		return NewSQLiteStore(":memory:", logger)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
