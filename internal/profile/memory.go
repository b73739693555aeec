package profile

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/crimson-sun/quill/internal/model"
)

// Memory is an in-process ring buffer Store.
type Memory struct {
	mu   sync.RWMutex
	ring []model.ProfileRecord
	next int
	size int
}

// NewMemory creates a ring holding up to capacity records. A non-positive
// capacity uses 1024.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Memory{ring: make([]model.ProfileRecord, capacity)}
}

func (m *Memory) Insert(_ context.Context, rec model.ProfileRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring[m.next] = rec
	m.next = (m.next + 1) % len(m.ring)
	if m.size < len(m.ring) {
		m.size++
	}
	return nil
}

func (m *Memory) Find(_ context.Context, q Query) ([]model.ProfileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.newestFirst(), q), nil
}

func (m *Memory) Count(ctx context.Context, q Query) (int, error) {
	q.Limit = 0
	recs, err := m.Find(ctx, q)
	return len(recs), err
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.ring)
	m.next, m.size = 0, 0
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) newestFirst() []model.ProfileRecord {
	out := make([]model.ProfileRecord, 0, m.size)
	for i := 1; i <= m.size; i++ {
		idx := (m.next - i + len(m.ring)) % len(m.ring)
		out = append(out, m.ring[idx])
	}
	return out
}
