package docstore

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps documents in process. Used by tests and the memory backend.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, collection, id string, out any) error {
	m.mu.RLock()
	raw, ok := m.data[collection][id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return decodeOne(raw, out)
}

func (m *Memory) Put(ctx context.Context, collection, id string, doc any) error {
	raw, err := encode(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.data[collection]
	if !ok {
		coll = make(map[string][]byte)
		m.data[collection] = coll
	}
	coll[id] = raw
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.data[collection], id)
	return nil
}

func (m *Memory) Find(ctx context.Context, collection string, filter Filter, out any) error {
	m.mu.RLock()
	coll := m.data[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	raws := make([][]byte, 0, len(ids))
	for _, id := range ids {
		if matches(coll[id], filter) {
			raws = append(raws, coll[id])
		}
	}
	m.mu.RUnlock()
	return decodeAll(raws, out)
}
