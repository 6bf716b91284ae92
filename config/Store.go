package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/trackrl/storage"
)

// Store driver names
const (
	MemoryStore = "memory"
	SQLiteStore = "sqlite"
)

// StoreConfig selects where run statistics are persisted
type StoreConfig struct {
	// Driver selects the store: "memory" for short-lived runs and
	// tests, "sqlite" for runs that should survive restarts
	Driver string `yaml:"driver" env:"TRACKRL_STORE_DRIVER"`

	// Path is the SQLite database file
	Path string `yaml:"path" env:"TRACKRL_STORE_PATH"`
}

func defaultStore() StoreConfig {
	return StoreConfig{
		Driver: SQLiteStore,
		Path:   filepath.Join("data", "trackrl.db"),
	}
}

// Validate returns an error if the StoreConfig names an unknown
// driver or is missing the driver's parameters
func (c StoreConfig) Validate() error {
	switch c.Driver {
	case MemoryStore:
		return nil
	case SQLiteStore:
		if c.Path == "" {
			return fmt.Errorf("sqlite store needs a path")
		}
		return nil
	}
	return fmt.Errorf("no such store driver: %v", c.Driver)
}

// Open opens and initializes the configured store. The caller owns
// the store and must Close it.
func (c StoreConfig) Open(ctx context.Context) (storage.Store, error) {
	var store storage.Store
	switch c.Driver {
	case MemoryStore:
		store = storage.NewMemoryStore()
	case SQLiteStore:
		if dir := filepath.Dir(c.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("open: %v", err)
			}
		}
		store = storage.NewSQLiteStore(c.Path)
	default:
		return nil, fmt.Errorf("open: no such store driver: %v", c.Driver)
	}

	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("open: %v", err)
	}
	return store, nil
}
