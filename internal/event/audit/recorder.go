package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shopstream/internal/event/models"
)

// Recorder turns committed status transitions into outbox entries. It
// implements the processor's TransitionRecorder and must be called inside
// the transaction that performs the transition.
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends the transition to the outbox and logs it. ev carries the
// post-transition state; from is the status it left.
func (r *Recorder) Record(ctx context.Context, ev *models.Event, from models.EventStatus) error {
	entry, err := NewEntry(Transition{
		EventID:       ev.ID,
		TenantID:      ev.TenantID,
		EventType:     ev.EventType,
		OldStatus:     from,
		NewStatus:     ev.Status,
		RetryCount:    ev.RetryCount,
		ErrorMessage:  ev.ErrorMessage,
		CorrelationID: ev.CorrelationID,
		OccurredAt:    r.now(),
	})
	if err != nil {
		return fmt.Errorf("serializing transition: %w", err)
	}
	if err := r.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("appending transition to outbox: %w", err)
	}
	r.logger.DebugContext(ctx, "transition recorded",
		slog.Int64("event_id", int64(ev.ID)),
		slog.String("from", string(from)),
		slog.String("to", string(ev.Status)),
		slog.String("correlation_id", ev.CorrelationID))
	return nil
}
