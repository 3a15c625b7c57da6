package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mobilepilot/config"
)

// NewBundle creates a store Bundle based on the storage configuration
func NewBundle(ctx context.Context, cfg *config.StorageConfig) (*Bundle, error) {
	if cfg == nil {
		return NewMemoryBundle(), nil
	}

	switch cfg.Backend {
	case "sqlite":
		// Ensure directory exists
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
		}
		return NewSQLiteBundle(cfg.Path)

	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres storage requires dsn")
		}
		return NewPostgresBundle(ctx, cfg.DSN)

	case "memory", "":
		return NewMemoryBundle(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (expected 'memory', 'sqlite' or 'postgres')", cfg.Backend)
	}
}
