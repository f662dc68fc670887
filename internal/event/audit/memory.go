package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"shopstream/internal/sentinel"
)

// InMemory keeps the outbox in process memory.
type InMemory struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

// NewInMemory creates an in-memory outbox store.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[uuid.UUID]*Entry)}
}

func (s *InMemory) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.ID]; exists {
		return fmt.Errorf("outbox entry already exists: %w", sentinel.ErrDuplicate)
	}
	s.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (s *InMemory) FetchUnprocessed(_ context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*Entry
	for _, e := range s.entries {
		if e.IsPending() {
			pending = append(pending, cloneEntry(e))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID.String() < pending[j].ID.String()
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *InMemory) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || !e.IsPending() {
		return sentinel.ErrNotFound
	}
	ts := processedAt
	e.ProcessedAt = &ts
	return nil
}

func (s *InMemory) CountPending(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, e := range s.entries {
		if e.IsPending() {
			count++
		}
	}
	return count, nil
}

func (s *InMemory) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, e := range s.entries {
		if e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

func cloneEntry(e *Entry) *Entry {
	c := *e
	if e.ProcessedAt != nil {
		ts := *e.ProcessedAt
		c.ProcessedAt = &ts
	}
	if e.Payload != nil {
		c.Payload = append([]byte(nil), e.Payload...)
	}
	return &c
}
