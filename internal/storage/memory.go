package storage

import (
	"context"
	"sync"
)

// Memory keeps objects in process. Used in development and tests.
type Memory struct {
	mu      sync.RWMutex
	base    string
	objects map[string][]byte
}

func NewMemory(base string) *Memory {
	if base == "" {
		base = "memory://chimeo"
	}
	return &Memory{base: base, objects: make(map[string][]byte)}
}

func (m *Memory) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return publicURL(m.base, key), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Get returns a stored object.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

// BaseURL is the prefix of every URL this store returns.
func (m *Memory) BaseURL() string {
	return m.base
}
