package database

import (
	"fmt"
	"os"
	"path/filepath"

	"droplock/internal/config"
)

// FileName is the store file inside the configured data directory.
const FileName = "droplock.db"

// NewDatabaseFromConfig opens the store selected by cfg. A memory store is
// migrated immediately since it starts empty on every run; a file store is
// returned as-is and the caller decides whether to migrate or check.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, FileName))
	case "memory":
		db, err := NewSQLiteDatabase(":memory:")
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
