// internal/kv/memory.go
//
// In-memory implementation of Store.
// Concurrency-safe via RWMutex; state is lost when the process exits.

package kv

import (
	"context"
	"sync"
)

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu     sync.RWMutex      // guards values
	values map[string]string // keyed by store key
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{values: make(map[string]string)}
}

// Get looks up a key.
func (m *memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

// Set adds or replaces the value for key.
func (m *memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Remove deletes key if present.
func (m *memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memory) Close() error { return nil }
