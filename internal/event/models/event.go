// Package models defines the event ledger record and its state machine.
//
// An Event is the unit of work of the ingestion pipeline: an append-mostly
// row whose payload is stored verbatim for audit and whose status advances
// monotonically along
//
//	pending → processing → completed
//	pending → processing → failed (retry_count < max) → pending
//	pending → processing → failed (retry_count ≥ max) → dead_letter
//
// completed and dead_letter are terminal; nothing resurrects them
// automatically.
package models

import (
	"encoding/json"
	"time"

	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
)

// EventStatus is the processing status of a ledger record.
type EventStatus string

const (
	StatusPending    EventStatus = "pending"
	StatusProcessing EventStatus = "processing"
	StatusCompleted  EventStatus = "completed"
	StatusFailed     EventStatus = "failed"
	StatusDeadLetter EventStatus = "dead_letter"
)

// Event is a received event and its processing state. Payload is immutable
// once stored; corrections arrive as new events, never as mutations.
type Event struct {
	ID             domain.EventID
	TenantID       domain.TenantID
	EventType      EventType
	EntityType     EntityType
	EntityID       domain.ExternalID
	IdempotencyKey string
	Payload        json.RawMessage
	Status         EventStatus
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
	RetryCount     int
	ErrorMessage   string
	CorrelationID  string
	UpdatedAt      time.Time
}

// New creates a pending event ready for insertion.
func New(tenantID domain.TenantID, eventType EventType, entityType EntityType, entityID domain.ExternalID, key string, payload json.RawMessage, correlationID string, now time.Time) *Event {
	return &Event{
		TenantID:       tenantID,
		EventType:      eventType,
		EntityType:     entityType,
		EntityID:       entityID,
		IdempotencyKey: key,
		Payload:        payload,
		Status:         StatusPending,
		ReceivedAt:     now,
		CorrelationID:  correlationID,
		UpdatedAt:      now,
	}
}

// MarkProcessing claims the event for a worker. Only pending events can be
// claimed; anything else is a caller error, not a silent no-op.
func (e *Event) MarkProcessing(now time.Time) error {
	if e.Status != StatusPending {
		return e.transitionError(StatusProcessing)
	}
	e.Status = StatusProcessing
	e.UpdatedAt = now
	return nil
}

// MarkCompleted records a successful payload application.
func (e *Event) MarkCompleted(now time.Time) error {
	if e.Status != StatusProcessing {
		return e.transitionError(StatusCompleted)
	}
	e.Status = StatusCompleted
	ts := now
	e.ProcessedAt = &ts
	e.UpdatedAt = now
	return nil
}

// MarkFailed records a failed application attempt: increments the retry
// count and stores the error. When the count reaches maxRetries the event is
// promoted to dead_letter in the same call, atomically deciding the
// destination state.
func (e *Event) MarkFailed(errMsg string, maxRetries int, now time.Time) error {
	if e.Status != StatusProcessing {
		return e.transitionError(StatusFailed)
	}
	e.RetryCount++
	e.ErrorMessage = errMsg
	e.UpdatedAt = now
	if e.RetryCount >= maxRetries {
		e.Status = StatusDeadLetter
		ts := now
		e.ProcessedAt = &ts
	} else {
		e.Status = StatusFailed
	}
	return nil
}

// MarkDeadLetter short-circuits a non-transient failure straight to the
// terminal state without consuming the retry budget.
func (e *Event) MarkDeadLetter(errMsg string, now time.Time) error {
	if e.Status != StatusProcessing {
		return e.transitionError(StatusDeadLetter)
	}
	e.Status = StatusDeadLetter
	e.ErrorMessage = errMsg
	ts := now
	e.ProcessedAt = &ts
	e.UpdatedAt = now
	return nil
}

// ResetForRetry releases a failed event back to pending once its backoff
// delay has elapsed. Issued only by the retry scheduler.
func (e *Event) ResetForRetry(now time.Time) error {
	if e.Status != StatusFailed {
		return e.transitionError(StatusPending)
	}
	e.Status = StatusPending
	e.ErrorMessage = ""
	e.UpdatedAt = now
	return nil
}

// IsRetriable reports whether the event is eligible for another attempt.
func (e *Event) IsRetriable() bool {
	return e.Status == StatusFailed
}

// IsTerminal reports whether the event has reached a final state.
func (e *Event) IsTerminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusDeadLetter
}

// ProcessingDuration returns the time from receipt to terminal processing,
// or false when the event has not been processed yet.
func (e *Event) ProcessingDuration() (time.Duration, bool) {
	if e.ProcessedAt == nil {
		return 0, false
	}
	return e.ProcessedAt.Sub(e.ReceivedAt), true
}

func (e *Event) transitionError(to EventStatus) error {
	return dErrors.NewWithDetails(dErrors.CodeInvariant,
		"illegal event transition "+string(e.Status)+" -> "+string(to),
		map[string]any{
			"event_id": e.ID,
			"from":     string(e.Status),
			"to":       string(to),
		})
}
