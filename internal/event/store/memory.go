package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"shopstream/internal/event/models"
	"shopstream/internal/sentinel"
	"shopstream/pkg/domain"
)

// InMemory keeps the ledger in process memory. All transitions hold the
// store lock, so the compare-and-set semantics match the Postgres
// implementation.
type InMemory struct {
	mu     sync.RWMutex
	nextID domain.EventID
	events map[domain.EventID]*models.Event
	byKey  map[string]domain.EventID
}

// NewInMemory creates an in-memory event store.
func NewInMemory() *InMemory {
	return &InMemory{
		nextID: 1,
		events: make(map[domain.EventID]*models.Event),
		byKey:  make(map[string]domain.EventID),
	}
}

func (s *InMemory) Insert(_ context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[ev.IdempotencyKey]; exists {
		return fmt.Errorf("idempotency key already recorded: %w", sentinel.ErrDuplicate)
	}
	ev.ID = s.nextID
	s.nextID++
	s.events[ev.ID] = clone(ev)
	s.byKey[ev.IdempotencyKey] = ev.ID
	return nil
}

func (s *InMemory) GetByID(_ context.Context, id domain.EventID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(ev), nil
}

func (s *InMemory) GetByIdempotencyKey(_ context.Context, key string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.events[id]), nil
}

func (s *InMemory) ClaimPending(_ context.Context, limit int, now time.Time) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.selectLocked(func(ev *models.Event) bool {
		return ev.Status == models.StatusPending
	})
	sortByReceived(pending)
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	claimed := make([]*models.Event, 0, len(pending))
	for _, ev := range pending {
		stored := s.events[ev.ID]
		if err := stored.MarkProcessing(now); err != nil {
			continue
		}
		claimed = append(claimed, clone(stored))
	}
	return claimed, nil
}

func (s *InMemory) MarkCompleted(_ context.Context, id domain.EventID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if ev.Status != models.StatusProcessing {
		return sentinel.ErrInvalidState
	}
	return ev.MarkCompleted(now)
}

func (s *InMemory) MarkFailed(_ context.Context, id domain.EventID, errMsg string, maxRetries int, now time.Time) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if ev.Status != models.StatusProcessing {
		return nil, sentinel.ErrInvalidState
	}
	if err := ev.MarkFailed(errMsg, maxRetries, now); err != nil {
		return nil, err
	}
	return clone(ev), nil
}

func (s *InMemory) MarkDeadLetter(_ context.Context, id domain.EventID, errMsg string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if ev.Status != models.StatusProcessing {
		return sentinel.ErrInvalidState
	}
	return ev.MarkDeadLetter(errMsg, now)
}

func (s *InMemory) ResetForRetry(_ context.Context, id domain.EventID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if ev.Status != models.StatusFailed {
		return false, nil
	}
	if err := ev.ResetForRetry(now); err != nil {
		return false, err
	}
	return true, nil
}

func (s *InMemory) ListFailedDue(_ context.Context, now time.Time, maxRetries int, base, ceiling time.Duration, limit int) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := s.selectLocked(func(ev *models.Event) bool {
		if ev.Status != models.StatusFailed || ev.RetryCount >= maxRetries {
			return false
		}
		return !now.Before(ev.UpdatedAt.Add(backoffDelay(ev.RetryCount, base, ceiling)))
	})
	sortByReceived(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *InMemory) RevertStuck(_ context.Context, cutoff time.Time, maxRetries int, now time.Time) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reverted []*models.Event
	for _, ev := range s.events {
		if ev.Status != models.StatusProcessing || !ev.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := ev.MarkFailed("processing timeout exceeded", maxRetries, now); err != nil {
			continue
		}
		reverted = append(reverted, clone(ev))
	}
	sortByReceived(reverted)
	return reverted, nil
}

func (s *InMemory) CountByStatus(_ context.Context) (map[models.EventStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.EventStatus]int64)
	for _, ev := range s.events {
		counts[ev.Status]++
	}
	return counts, nil
}

func (s *InMemory) OldestPendingAge(_ context.Context, now time.Time) (time.Duration, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest *models.Event
	for _, ev := range s.events {
		if ev.Status != models.StatusPending {
			continue
		}
		if oldest == nil || ev.ReceivedAt.Before(oldest.ReceivedAt) {
			oldest = ev
		}
	}
	if oldest == nil {
		return 0, false, nil
	}
	return now.Sub(oldest.ReceivedAt), true, nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID domain.TenantID, status models.EventStatus, limit, offset int) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.selectLocked(func(ev *models.Event) bool {
		if ev.TenantID != tenantID {
			return false
		}
		return status == "" || ev.Status == status
	})
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *InMemory) TenantsWithOrderingFailures(_ context.Context, since time.Time) ([]domain.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[domain.TenantID]struct{})
	for _, ev := range s.events {
		if ev.Status != models.StatusFailed && ev.Status != models.StatusDeadLetter {
			continue
		}
		if !strings.HasPrefix(ev.ErrorMessage, OrderingErrorPrefix) || ev.UpdatedAt.Before(since) {
			continue
		}
		seen[ev.TenantID] = struct{}{}
	}
	out := make([]domain.TenantID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *InMemory) LastReceivedAt(_ context.Context, tenantID domain.TenantID) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *time.Time
	for _, ev := range s.events {
		if ev.TenantID != tenantID {
			continue
		}
		if last == nil || ev.ReceivedAt.After(*last) {
			ts := ev.ReceivedAt
			last = &ts
		}
	}
	return last, nil
}

func (s *InMemory) selectLocked(match func(*models.Event) bool) []*models.Event {
	var out []*models.Event
	for _, ev := range s.events {
		if match(ev) {
			out = append(out, clone(ev))
		}
	}
	return out
}

func sortByReceived(events []*models.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].ReceivedAt.Equal(events[j].ReceivedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].ReceivedAt.Before(events[j].ReceivedAt)
	})
}

func backoffDelay(retryCount int, base, ceiling time.Duration) time.Duration {
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

func clone(ev *models.Event) *models.Event {
	c := *ev
	if ev.ProcessedAt != nil {
		ts := *ev.ProcessedAt
		c.ProcessedAt = &ts
	}
	if ev.Payload != nil {
		c.Payload = append([]byte(nil), ev.Payload...)
	}
	return &c
}
