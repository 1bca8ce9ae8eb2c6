package natsclient

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/bridgekit/errors"
)

// MemoryKV is an in-memory KV with the same revision semantics as JetStream
// KV. It backs unit tests and single-process deployments.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryKV creates an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]*Entry)}
}

// Get retrieves a value with its revision.
func (m *MemoryKV) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	cp := make([]byte, len(entry.Value))
	copy(cp, entry.Value)
	return &Entry{Key: key, Value: cp, Revision: entry.Revision}, nil
}

// Put creates or replaces a key.
func (m *MemoryKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rev := uint64(1)
	if existing, ok := m.entries[key]; ok {
		rev = existing.Revision + 1
	}
	m.entries[key] = &Entry{Key: key, Value: append([]byte(nil), value...), Revision: rev}
	return rev, nil
}

// Create writes a key only if it does not exist.
func (m *MemoryKV) Create(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		return 0, ErrKeyExists
	}
	m.entries[key] = &Entry{Key: key, Value: append([]byte(nil), value...), Revision: 1}
	return 1, nil
}

// Update performs a CAS write.
func (m *MemoryKV) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.entries[key]
	if !ok || existing.Revision != revision {
		return 0, ErrRevisionMismatch
	}
	next := existing.Revision + 1
	m.entries[key] = &Entry{Key: key, Value: append([]byte(nil), value...), Revision: next}
	return next, nil
}

// Keys lists all keys, sorted for determinism.
func (m *MemoryKV) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
