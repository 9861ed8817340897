package storage

import (
	"context"
	"sort"
	"sync"

	"fisb_decode/internal/products"
)

// Memory is an in-process record store. Tests use it, and it backs runs
// where nothing needs to outlive the process.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]*products.Record
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]*products.Record)}
}

func (m *Memory) Upsert(_ context.Context, collection string, r *products.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]*products.Record)
		m.collections[collection] = docs
	}

	clone := *r
	docs[r.Key()] = &clone
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections[collection], key)
	return nil
}

func (m *Memory) FindOne(_ context.Context, collection, key string) (*products.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.collections[collection][key]
	if !ok {
		return nil, nil
	}
	clone := *r
	return &clone, nil
}

func (m *Memory) FindMany(_ context.Context, collection string, f Filter) ([]*products.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*products.Record
	for key, r := range m.collections[collection] {
		if f.matches(key, r) {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (m *Memory) DeleteMany(_ context.Context, collection string, f Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, r := range m.collections[collection] {
		if f.matches(key, r) {
			delete(m.collections[collection], key)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }
