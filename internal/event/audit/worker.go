package audit

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"shopstream/internal/platform/kafka/producer"
	"shopstream/internal/platform/metrics"
)

// Publisher sends an outbox payload to the transition stream.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Worker polls the transition outbox and publishes entries to Kafka.
// Publishing is at-least-once; consumers deduplicate on the entry ID
// carried as the message key.
type Worker struct {
	store        Store
	publisher    Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

// WithTopic sets the Kafka topic for publishing.
func WithTopic(topic string) WorkerOption {
	return func(w *Worker) {
		w.topic = topic
	}
}

// WithBatchSize sets the maximum number of entries to fetch per poll.
func WithBatchSize(size int) WorkerOption {
	return func(w *Worker) {
		w.batchSize = size
	}
}

// WithPollInterval sets the interval between polls.
func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		w.pollInterval = interval
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// NewWorker creates an outbox publishing worker.
func NewWorker(store Store, pub Publisher, logger *slog.Logger, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		store:        store,
		publisher:    pub,
		topic:        "shopstream.event.transitions",
		batchSize:    100,
		pollInterval: time.Second,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start begins the polling loop in a background goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case <-ticker.C:
			w.poll(w.ctx)
		}
	}
}

// poll fetches and publishes a batch of outbox entries.
func (w *Worker) poll(ctx context.Context) {
	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to fetch outbox entries", "error", err)
		}
		return
	}
	if len(entries) == 0 {
		return
	}

	for _, entry := range entries {
		if err := w.publishEntry(ctx, entry); err != nil {
			w.logger.Error("failed to publish outbox entry",
				"id", entry.ID,
				"event_id", entry.EventID,
				"error", err)
			if w.metrics != nil {
				w.metrics.OutboxFailures.Inc()
			}
			// Retried on the next poll.
			continue
		}

		if err := w.store.MarkProcessed(ctx, entry.ID, time.Now()); err != nil {
			// Published but unmarked; it will be re-published and
			// deduplicated downstream.
			w.logger.Error("failed to mark entry as processed",
				"id", entry.ID,
				"error", err)
			continue
		}

		if w.metrics != nil {
			w.metrics.OutboxPublished.Inc()
		}
	}

	if w.metrics != nil {
		if pending, err := w.store.CountPending(ctx); err == nil {
			w.metrics.OutboxPending.Set(float64(pending))
		}
	}
}

// publishEntry publishes a single outbox entry.
func (w *Worker) publishEntry(ctx context.Context, entry *Entry) error {
	msg := &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.ID.String()),
		Value: entry.Payload,
		Headers: map[string]string{
			"event_id":  strconv.FormatInt(int64(entry.EventID), 10),
			"tenant_id": strconv.FormatInt(int64(entry.TenantID), 10),
		},
	}
	return w.publisher.Produce(ctx, msg)
}

// drain publishes remaining entries during shutdown.
func (w *Worker) drain() {
	w.logger.Info("draining transition outbox worker")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prev := int64(-1)
	for {
		pending, err := w.store.CountPending(ctx)
		if err != nil || pending == 0 || pending == prev {
			return
		}
		prev = pending
		w.poll(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
