// Package sweeper is the pipeline's safety net: it recovers events stranded
// in processing by crashed workers, watches queue health, and schedules
// reconciliation for tenants whose projections can no longer be trusted.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shopstream/internal/event/models"
	"shopstream/internal/event/processor"
	"shopstream/internal/event/store"
	"shopstream/internal/platform/metrics"
	tenantmodels "shopstream/internal/tenant/models"
	"shopstream/pkg/domain"
)

// Ingestor records control events through the normal ingest path.
type Ingestor interface {
	Ingest(ctx context.Context, req processor.IngestRequest) (processor.Outcome, error)
}

// TransitionRecorder is notified of every committed status transition.
// The audit recorder satisfies it.
type TransitionRecorder interface {
	Record(ctx context.Context, ev *models.Event, from models.EventStatus) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *models.Event, models.EventStatus) error { return nil }

// TenantSource lists the tenants the sweeper watches.
type TenantSource interface {
	ActiveTenants(ctx context.Context) ([]*tenantmodels.Tenant, error)
}

// Config carries the sweeper's thresholds.
type Config struct {
	Interval             time.Duration
	ProcessingTimeout    time.Duration
	MaxRetries           int
	InactivityThreshold  time.Duration
	DeadLetterAlertDepth int64
	PendingLagAlertDepth int64
}

// Sweeper runs the periodic reconciliation pass.
type Sweeper struct {
	events   store.Store
	tenants  TenantSource
	ingestor Ingestor
	recorder TransitionRecorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Sweeper.
type Option func(*Sweeper)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithRecorder sets the transition recorder.
func WithRecorder(r TransitionRecorder) Option {
	return func(s *Sweeper) { s.recorder = r }
}

// New creates a Sweeper.
func New(events store.Store, tenants TenantSource, ingestor Ingestor, m *metrics.Metrics, logger *slog.Logger, cfg Config, opts ...Option) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Sweeper{
		events:   events,
		tenants:  tenants,
		ingestor: ingestor,
		recorder: nopRecorder{},
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single sweep: stuck recovery, health gauges, and
// reconciliation scheduling. Each stage runs even when an earlier one
// fails; the first error is returned.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(s.recoverStuck(ctx))
	record(s.updateGauges(ctx))
	record(s.scheduleReconciliation(ctx))
	return firstErr
}

// recoverStuck reverts events stranded in processing past the timeout. The
// revert charges the retry budget the same way a failed attempt does, so an
// event that keeps killing its worker still ends up dead-lettered.
func (s *Sweeper) recoverStuck(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.cfg.ProcessingTimeout)

	reverted, err := s.events.RevertStuck(ctx, cutoff, s.cfg.MaxRetries, now)
	if err != nil {
		return fmt.Errorf("reverting stuck events: %w", err)
	}
	for _, ev := range reverted {
		s.metrics.StuckRecovered.Inc()
		s.metrics.ObserveTransition(string(models.StatusProcessing), string(ev.Status))
		if recErr := s.recorder.Record(ctx, ev, models.StatusProcessing); recErr != nil {
			s.logger.ErrorContext(ctx, "failed to record revert transition",
				slog.Int64("event_id", int64(ev.ID)), slog.Any("error", recErr))
		}
		s.logger.WarnContext(ctx, "stuck event recovered",
			slog.Int64("event_id", int64(ev.ID)),
			slog.String("status", string(ev.Status)),
			slog.Int("retry_count", ev.RetryCount),
			slog.String("correlation_id", ev.CorrelationID))
	}
	return nil
}

// updateGauges refreshes the queue health gauges and logs threshold alerts.
func (s *Sweeper) updateGauges(ctx context.Context) error {
	counts, err := s.events.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("counting events by status: %w", err)
	}

	deadLetterDepth := counts[models.StatusDeadLetter]
	pendingLag := counts[models.StatusPending]
	s.metrics.DeadLetterDepth.Set(float64(deadLetterDepth))
	s.metrics.PendingLag.Set(float64(pendingLag))

	if deadLetterDepth >= s.cfg.DeadLetterAlertDepth {
		s.logger.WarnContext(ctx, "dead letter depth above threshold",
			slog.Int64("depth", deadLetterDepth),
			slog.Int64("threshold", s.cfg.DeadLetterAlertDepth))
	}
	if pendingLag >= s.cfg.PendingLagAlertDepth {
		s.logger.WarnContext(ctx, "pending backlog above threshold",
			slog.Int64("depth", pendingLag),
			slog.Int64("threshold", s.cfg.PendingLagAlertDepth))
	}

	age, ok, err := s.events.OldestPendingAge(ctx, s.now())
	if err != nil {
		return fmt.Errorf("finding oldest pending age: %w", err)
	}
	if ok {
		s.metrics.OldestPendingAge.Set(age.Seconds())
	} else {
		s.metrics.OldestPendingAge.Set(0)
	}
	return nil
}

// scheduleReconciliation emits a reconciliation control event for every
// tenant that reported an ordering violation since the last sweep and for
// every active tenant that has gone quiet past the inactivity threshold.
func (s *Sweeper) scheduleReconciliation(ctx context.Context) error {
	now := s.now()
	needsSync := make(map[domain.TenantID]string)

	flagged, err := s.events.TenantsWithOrderingFailures(ctx, now.Add(-s.cfg.Interval))
	if err != nil {
		return fmt.Errorf("listing tenants with ordering failures: %w", err)
	}
	for _, id := range flagged {
		needsSync[id] = "ordering_violation"
	}

	active, err := s.tenants.ActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing active tenants: %w", err)
	}
	for _, t := range active {
		if _, already := needsSync[t.ID]; already {
			continue
		}
		last, err := s.events.LastReceivedAt(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("finding last received event: %w", err)
		}
		if last == nil || now.Sub(*last) >= s.cfg.InactivityThreshold {
			needsSync[t.ID] = "inactivity"
		}
	}

	for tenantID, reason := range needsSync {
		if err := s.emitReconciliation(ctx, tenantID, reason, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to schedule reconciliation",
				slog.Int64("tenant_id", int64(tenantID)),
				slog.String("reason", reason),
				slog.Any("error", err))
		}
	}
	return nil
}

func (s *Sweeper) emitReconciliation(ctx context.Context, tenantID domain.TenantID, reason string, now time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"reason":       reason,
		"triggered_at": now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	outcome, err := s.ingestor.Ingest(ctx, processor.IngestRequest{
		TenantID:   tenantID,
		EventType:  models.EventReconciliationStarted,
		EntityType: models.EntityTenant,
		EntityID:   domain.ExternalID(tenantID.String()),
		Payload:    payload,
		OccurredAt: now,
	})
	if err != nil {
		return err
	}
	if !outcome.Duplicate {
		s.logger.InfoContext(ctx, "reconciliation scheduled",
			slog.Int64("tenant_id", int64(tenantID)),
			slog.String("reason", reason),
			slog.Int64("event_id", int64(outcome.Event.ID)))
	}
	return nil
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
