package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process. Used by tests and the "memory" backend.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return applyLimit(out, f.Limit), nil
}

// Records returns a copy of everything appended so far.
func (m *MemoryStore) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.records...)
}

func (m *MemoryStore) Close() error { return nil }
