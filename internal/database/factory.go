package database

import (
	"fmt"

	"filesdb-go/internal/config"
)

// NewStoreFromConfig creates a store based on the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
