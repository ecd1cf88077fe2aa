// internal/kv/kv.go
//
// Durable key-value store for a client profile.
// The session store persists each of its fields under a stable key and restores
// them verbatim on the next start.
//
// Backends:
//   - "memory": map guarded by an RWMutex; lost on exit (tests, throwaway sessions).
//   - "sqlite": single-file database with a kv table.
//   - "badger": embedded LSM directory.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kv: not found")

// Store is the persistence contract used by the session store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend    string // memory | sqlite | badger
	SQLitePath string
	BadgerPath string
}

// Open constructs the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, errors.New("kv: sqlite backend requires SQLITE_PATH")
		}
		return OpenSQLite(cfg.SQLitePath)
	case "badger":
		if cfg.BadgerPath == "" {
			return nil, errors.New("kv: badger backend requires BADGER_PATH")
		}
		return OpenBadger(BadgerConfig{Path: cfg.BadgerPath, SyncWrites: true})
	default:
		return nil, fmt.Errorf("kv: unsupported backend %q", cfg.Backend)
	}
}
