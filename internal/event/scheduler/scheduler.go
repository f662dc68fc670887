// Package scheduler releases failed events back to pending once their
// exponential backoff delay has elapsed.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"shopstream/internal/event/models"
	"shopstream/internal/event/store"
	"shopstream/internal/platform/metrics"
)

// TransitionRecorder is notified of every committed status transition.
// The audit recorder satisfies it.
type TransitionRecorder interface {
	Record(ctx context.Context, ev *models.Event, from models.EventStatus) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *models.Event, models.EventStatus) error { return nil }

// Scheduler periodically scans for failed events whose backoff has elapsed
// and resets them to pending. Several instances may run at once; the
// status-guarded reset means each due event is released exactly once.
type Scheduler struct {
	events   store.Store
	recorder TransitionRecorder
	metrics  *metrics.Metrics
	logger   *slog.Logger

	interval   time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	batchSize  int
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithInterval sets the scan interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) { s.interval = interval }
}

// WithBatchSize sets the maximum number of events released per scan.
func WithBatchSize(size int) Option {
	return func(s *Scheduler) { s.batchSize = size }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRecorder sets the transition recorder.
func WithRecorder(r TransitionRecorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// New creates a Scheduler.
func New(events store.Store, m *metrics.Metrics, logger *slog.Logger, maxRetries int, baseDelay, maxDelay time.Duration, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		events:     events,
		recorder:   nopRecorder{},
		metrics:    m,
		logger:     logger,
		interval:   30 * time.Second,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		batchSize:  100,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins the scan loop in a background goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Error("retry scan failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single scan and returns the number of events released.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.events.ListFailedDue(ctx, now, s.maxRetries, s.baseDelay, s.maxDelay, s.batchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, ev := range due {
		ok, err := s.events.ResetForRetry(ctx, ev.ID, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to release event for retry",
				slog.Int64("event_id", int64(ev.ID)), slog.Any("error", err))
			continue
		}
		if !ok {
			// Another scheduler instance or an operator got there first.
			continue
		}
		released++
		s.metrics.RetriesReleased.Inc()
		s.metrics.ObserveTransition(string(models.StatusFailed), string(models.StatusPending))
		pending := *ev
		if resetErr := pending.ResetForRetry(now); resetErr == nil {
			if recErr := s.recorder.Record(ctx, &pending, models.StatusFailed); recErr != nil {
				s.logger.ErrorContext(ctx, "failed to record release transition",
					slog.Int64("event_id", int64(ev.ID)), slog.Any("error", recErr))
			}
		}
		s.logger.InfoContext(ctx, "event released for retry",
			slog.Int64("event_id", int64(ev.ID)),
			slog.Int("retry_count", ev.RetryCount),
			slog.String("correlation_id", ev.CorrelationID))
	}
	return released, nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
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
