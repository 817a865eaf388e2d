package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"lensfeed/internal/config"
)

// NewStoreFromConfig creates a SQLiteStore based on the storage config type.
func NewStoreFromConfig(cfg config.StorageConfig) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite storage")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "lensfeed.db"))
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
