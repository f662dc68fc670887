// Package audit records every event status transition as an immutable
// trail. Transitions are written to a transactional outbox alongside the
// transition itself, then published to Kafka by a background worker, so
// downstream consumers see exactly the transitions that committed.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"shopstream/internal/event/models"
	"shopstream/pkg/domain"
)

// Transition is the published record of one status change.
type Transition struct {
	EventID       domain.EventID     `json:"event_id"`
	TenantID      domain.TenantID    `json:"tenant_id"`
	EventType     models.EventType   `json:"event_type"`
	OldStatus     models.EventStatus `json:"old_status"`
	NewStatus     models.EventStatus `json:"new_status"`
	RetryCount    int                `json:"retry_count"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

// Entry is a pending transition in the outbox table.
type Entry struct {
	ID          uuid.UUID
	EventID     domain.EventID
	TenantID    domain.TenantID
	Payload     json.RawMessage
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// IsPending reports whether the entry has not been published yet.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// NewEntry creates an outbox entry carrying a serialized transition.
func NewEntry(t Transition) (*Entry, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:        uuid.New(),
		EventID:   t.EventID,
		TenantID:  t.TenantID,
		Payload:   payload,
		CreatedAt: t.OccurredAt,
	}, nil
}

// Store defines the outbox persistence operations. Implementations must be
// safe for concurrent use.
type Store interface {
	// Append adds an entry. Called within the same transaction as the
	// transition it records.
	Append(ctx context.Context, entry *Entry) error

	// FetchUnprocessed returns up to limit unpublished entries, oldest
	// first. Two workers never receive the same entry.
	FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error)

	// MarkProcessed marks an entry as published.
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error

	// CountPending returns the number of unpublished entries.
	CountPending(ctx context.Context) (int64, error)

	// DeleteProcessedBefore removes old published entries and returns how
	// many were deleted.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
