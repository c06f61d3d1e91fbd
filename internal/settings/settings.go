// Package settings holds the key/value storage the engine persists small
// ordered lists in (favorites and their order).
package settings

import (
	"sync"
)

// Store is an opaque get/set string-list store.
type Store interface {
	// Strings returns the list stored under key, nil when unset.
	Strings(key string) ([]string, error)
	SetStrings(key string, values []string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]string)}
}

func (m *Memory) Strings(key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), v...), nil
}

func (m *Memory) SetStrings(key string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]string(nil), values...)
	return nil
}
