package db

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"receipt-drop/internal/receipts"
)

// MemoryStore keeps records in process memory. It backs "memory://" URLs
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]receipts.Receipt

	// InsertErr, when set, is returned by Insert instead of storing.
	InsertErr error
	// PingErr, when set, is returned by Ping.
	PingErr error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]receipts.Receipt)}
}

func (m *MemoryStore) Backend() string { return "memory" }

func (m *MemoryStore) Insert(_ context.Context, r *receipts.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	if _, exists := m.records[r.ID]; exists {
		return fmt.Errorf("duplicate receipt id %s", r.ID)
	}
	m.records[r.ID] = *r
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*receipts.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, receipts.ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) List(_ context.Context, q receipts.ListQuery) ([]receipts.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := searchTerms(q.Text)
	out := make([]receipts.Receipt, 0)
	for _, r := range m.records {
		if matchesQuery(&r, q, terms) {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	if limit := q.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) HasObject(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.ObjectKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Ping(context.Context) error { return m.PingErr }

func (m *MemoryStore) Close(context.Context) error { return nil }

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func sortNewestFirst(rs []receipts.Receipt) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].UploadDate.Equal(rs[j].UploadDate) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].UploadDate.After(rs[j].UploadDate)
	})
}
