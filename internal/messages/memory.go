package messages

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scholarlink/relay/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for testing and
// local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*models.Message
}

// NewMemoryStore creates a new in-memory message store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]*models.Message{}}
}

func (m *MemoryStore) Insert(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := msg.Clone()
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	if clone.Status == "" {
		clone.Status = models.StatusSent
	}
	// Reflect generated fields back to caller.
	msg.ID = clone.ID
	msg.CreatedAt = clone.CreatedAt
	msg.Status = clone.Status
	m.rows[clone.ID] = clone
	return nil
}

func (m *MemoryStore) GetByIDs(ctx context.Context, ids []string) ([]*models.Message, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		if row, ok := m.rows[id]; ok {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		if row, ok := m.rows[id]; ok {
			row.MarkRead(now)
		}
	}
	return nil
}

func (m *MemoryStore) History(ctx context.Context, bookingID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Message, 0)
	for _, row := range m.rows {
		if row.BookingID == bookingID {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
