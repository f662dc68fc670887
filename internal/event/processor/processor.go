// Package processor implements the ingest and apply pipeline: exactly-once
// recording of incoming events and at-least-once application of their
// payloads, reconciled by the ledger's idempotency key and status guards.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"shopstream/internal/event/models"
	"shopstream/internal/event/store"
	"shopstream/internal/platform/database"
	"shopstream/internal/platform/metrics"
	"shopstream/internal/sentinel"
	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
	"shopstream/pkg/idempotency"
)

// TransitionRecorder is notified of every committed status transition. The
// audit recorder appends to the transition outbox inside the same database
// transaction as the transition itself.
type TransitionRecorder interface {
	Record(ctx context.Context, ev *models.Event, from models.EventStatus) error
}

// NopRecorder discards transitions.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *models.Event, models.EventStatus) error { return nil }

// IngestRequest carries a normalized incoming event before key derivation.
type IngestRequest struct {
	TenantID      domain.TenantID
	EventType     models.EventType
	EntityType    models.EntityType
	EntityID      domain.ExternalID
	Payload       json.RawMessage
	OccurredAt    time.Time
	CorrelationID string
}

// Outcome reports what Ingest did with a request. Duplicate means the key
// already owned a record; Event is the existing record in that case.
type Outcome struct {
	Event     *models.Event
	Duplicate bool
}

// settleTimeout bounds the failure-settlement write once it has been
// detached from the claim's context.
const settleTimeout = 10 * time.Second

// Processor owns the ingest path and the apply loop.
type Processor struct {
	events   store.Store
	tx       database.Transactor
	appliers *Appliers
	recorder TransitionRecorder
	metrics  *metrics.Metrics
	logger   *slog.Logger

	maxRetries        int
	processingTimeout time.Duration
	now               func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithRecorder sets the transition recorder.
func WithRecorder(r TransitionRecorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// New creates a Processor.
func New(events store.Store, tx database.Transactor, appliers *Appliers, m *metrics.Metrics, logger *slog.Logger, maxRetries int, processingTimeout time.Duration, opts ...Option) *Processor {
	p := &Processor{
		events:            events,
		tx:                tx,
		appliers:          appliers,
		recorder:          NopRecorder{},
		metrics:           m,
		logger:            logger,
		maxRetries:        maxRetries,
		processingTimeout: processingTimeout,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest records an incoming event in the ledger. Redeliveries are detected
// by the idempotency key's uniqueness constraint, never by a read-then-write
// check: two concurrent deliveries of the same event race on the insert and
// exactly one wins.
func (p *Processor) Ingest(ctx context.Context, req IngestRequest) (Outcome, error) {
	start := p.now()

	if !req.EventType.Valid() {
		return Outcome{}, dErrors.NewWithDetails(dErrors.CodeValidation,
			"unknown event type", map[string]any{"event_type": string(req.EventType)})
	}
	if !req.EntityType.Valid() {
		return Outcome{}, dErrors.NewWithDetails(dErrors.CodeValidation,
			"unknown entity type", map[string]any{"entity_type": string(req.EntityType)})
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = start
	}
	key, err := keyFor(req.TenantID, req.EventType, req.EntityType, req.EntityID, occurredAt)
	if err != nil {
		return Outcome{}, err
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = idempotency.NewCorrelationID()
	}

	ev := models.New(req.TenantID, req.EventType, req.EntityType, req.EntityID, key, req.Payload, correlationID, start)
	if err := p.events.Insert(ctx, ev); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			existing, getErr := p.events.GetByIdempotencyKey(ctx, key)
			if getErr != nil {
				return Outcome{}, dErrors.Wrap(getErr, dErrors.CodeInternal, "failed to load duplicate event")
			}
			p.metrics.DuplicateEvents.Inc()
			p.logger.InfoContext(ctx, "duplicate event short-circuited",
				slog.String("idempotency_key", key),
				slog.Int64("event_id", int64(existing.ID)),
				slog.String("correlation_id", existing.CorrelationID))
			return Outcome{Event: existing, Duplicate: true}, nil
		}
		return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
	}

	p.metrics.IncEventsIngested(string(req.EventType))
	p.metrics.IngestLatency.Observe(p.now().Sub(start).Seconds())
	p.logger.InfoContext(ctx, "event ingested",
		slog.Int64("event_id", int64(ev.ID)),
		slog.Int64("tenant_id", int64(ev.TenantID)),
		slog.String("event_type", string(ev.EventType)),
		slog.String("idempotency_key", key),
		slog.String("correlation_id", correlationID))
	return Outcome{Event: ev}, nil
}

// ProcessBatch claims up to limit pending events and applies each one.
// Returns the number of events claimed.
func (p *Processor) ProcessBatch(ctx context.Context, limit int) (int, error) {
	claimed, err := p.events.ClaimPending(ctx, limit, p.now())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim pending events")
	}
	for _, ev := range claimed {
		p.recordClaim(ctx, ev)
		p.processOne(ctx, ev)
	}
	return len(claimed), nil
}

// recordClaim emits the observability record for a pending→processing
// claim. The claim committed inside ClaimPending, so the outbox append
// rides after it; losing the append loses only this one record.
func (p *Processor) recordClaim(ctx context.Context, ev *models.Event) {
	p.metrics.ObserveTransition(string(models.StatusPending), string(models.StatusProcessing))
	if err := p.recorder.Record(ctx, ev, models.StatusPending); err != nil {
		p.logger.ErrorContext(ctx, "failed to record claim transition",
			slog.Int64("event_id", int64(ev.ID)), slog.Any("error", err))
	}
	p.logger.DebugContext(ctx, "event claimed",
		slog.Int64("event_id", int64(ev.ID)),
		slog.Int64("tenant_id", int64(ev.TenantID)),
		slog.String("event_type", string(ev.EventType)),
		slog.Int("retry_count", ev.RetryCount),
		slog.String("correlation_id", ev.CorrelationID))
}

// processOne applies a claimed event and settles its terminal or retriable
// state. Apply and the completion transition share one database transaction,
// so the projection never advances without the ledger advancing with it.
func (p *Processor) processOne(ctx context.Context, ev *models.Event) {
	ctx, cancel := context.WithTimeout(ctx, p.processingTimeout)
	defer cancel()

	applier, err := p.appliers.ForEvent(ev)
	if err == nil {
		err = p.tx.InTransaction(ctx, func(txCtx context.Context) error {
			if applyErr := applier.Apply(txCtx, ev); applyErr != nil {
				return applyErr
			}
			now := p.now()
			if markErr := p.events.MarkCompleted(txCtx, ev.ID, now); markErr != nil {
				return dErrors.Wrap(markErr, dErrors.CodeInternal, "failed to mark event completed")
			}
			if markErr := ev.MarkCompleted(now); markErr != nil {
				return markErr
			}
			return p.recorder.Record(txCtx, ev, models.StatusProcessing)
		})
	}
	if err == nil {
		p.metrics.ObserveTransition(string(models.StatusProcessing), string(models.StatusCompleted))
		p.observeSettled(ctx, ev.ID)
		p.logger.InfoContext(ctx, "event processed",
			slog.Int64("event_id", int64(ev.ID)),
			slog.String("event_type", string(ev.EventType)),
			slog.String("correlation_id", ev.CorrelationID))
		return
	}

	p.settleFailure(ctx, ev, err)
}

// settleFailure routes a processing error to the failed or dead_letter state.
// Validation failures can never succeed on retry and skip the retry budget;
// everything else gets another attempt.
func (p *Processor) settleFailure(ctx context.Context, ev *models.Event, procErr error) {
	now := p.now()
	msg := failureMessage(ctx, procErr)

	// Settlement must survive cancellation: a claimed event always gets an
	// outcome recorded, including when shutdown interrupted the apply.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if isTerminalFailure(procErr) {
		err := p.tx.InTransaction(ctx, func(txCtx context.Context) error {
			if markErr := p.events.MarkDeadLetter(txCtx, ev.ID, msg, now); markErr != nil {
				return markErr
			}
			if markErr := ev.MarkDeadLetter(msg, now); markErr != nil {
				return markErr
			}
			return p.recorder.Record(txCtx, ev, models.StatusProcessing)
		})
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to dead-letter event",
				slog.Int64("event_id", int64(ev.ID)), slog.Any("error", err))
			return
		}
		p.metrics.ObserveTransition(string(models.StatusProcessing), string(models.StatusDeadLetter))
		p.observeSettled(ctx, ev.ID)
		p.logger.ErrorContext(ctx, "event dead-lettered",
			slog.Int64("event_id", int64(ev.ID)),
			slog.String("event_type", string(ev.EventType)),
			slog.String("error", msg),
			slog.String("correlation_id", ev.CorrelationID))
		return
	}

	var updated *models.Event
	err := p.tx.InTransaction(ctx, func(txCtx context.Context) error {
		var markErr error
		updated, markErr = p.events.MarkFailed(txCtx, ev.ID, msg, p.maxRetries, now)
		if markErr != nil {
			return markErr
		}
		return p.recorder.Record(txCtx, updated, models.StatusProcessing)
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to settle event failure",
			slog.Int64("event_id", int64(ev.ID)), slog.Any("error", err))
		return
	}

	p.metrics.ObserveTransition(string(models.StatusProcessing), string(updated.Status))
	if updated.Status == models.StatusDeadLetter {
		p.observeSettled(ctx, updated.ID)
		p.logger.ErrorContext(ctx, "event exhausted retry budget",
			slog.Int64("event_id", int64(updated.ID)),
			slog.Int("retry_count", updated.RetryCount),
			slog.String("error", msg),
			slog.String("correlation_id", updated.CorrelationID))
		return
	}
	p.logger.WarnContext(ctx, "event processing failed",
		slog.Int64("event_id", int64(updated.ID)),
		slog.Int("retry_count", updated.RetryCount),
		slog.String("error", msg),
		slog.String("correlation_id", updated.CorrelationID))
}

// observeSettled records the receipt-to-settlement duration for an event
// that just reached a terminal state.
func (p *Processor) observeSettled(ctx context.Context, id domain.EventID) {
	ev, err := p.events.GetByID(ctx, id)
	if err != nil {
		return
	}
	if d, ok := ev.ProcessingDuration(); ok {
		p.metrics.ProcessingDuration.Observe(d.Seconds())
	}
}

// failureMessage renders a processing error for the ledger's error_message
// column. Ordering violations keep their prefix so the sweeper can find them.
func failureMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
		return "processing timeout exceeded"
	}
	msg := err.Error()
	if dErrors.HasCode(err, dErrors.CodeOrderingViolation) && !strings.HasPrefix(msg, store.OrderingErrorPrefix) {
		msg = store.OrderingErrorPrefix + ": " + msg
	}
	return msg
}

// isTerminalFailure reports whether the error can never succeed on retry.
func isTerminalFailure(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeNotFound:
		return true
	}
	return false
}
