package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps slots in process memory. Used in development and tests.
type MemoryBackend struct {
	mu     sync.RWMutex
	spaces map[string]map[Slot]string
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{spaces: make(map[string]map[Slot]string)}
}

func (m *MemoryBackend) Get(_ context.Context, namespace string, slot Slot) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.spaces[namespace][slot]
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, namespace string, slot Slot, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	space, ok := m.spaces[namespace]
	if !ok {
		space = make(map[Slot]string)
		m.spaces[namespace] = space
	}
	space[slot] = value
	return nil
}

func (m *MemoryBackend) Remove(_ context.Context, namespace string, slots ...Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		delete(m.spaces[namespace], s)
	}
	return nil
}

func (m *MemoryBackend) Clear(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spaces, namespace)
	return nil
}

// Len returns the number of slots stored under namespace.
func (m *MemoryBackend) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.spaces[namespace])
}
