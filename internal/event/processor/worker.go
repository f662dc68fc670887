package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Worker polls the ledger for pending events and drives the processor.
// Multiple workers may run against the same store; the claim query keeps
// them from handing out the same event twice.
type Worker struct {
	processor    *Processor
	batchSize    int
	pollInterval time.Duration
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

// WithBatchSize sets the maximum number of events to claim per poll.
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

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker creates a processing worker.
func NewWorker(p *Processor, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		processor:    p,
		batchSize:    100,
		pollInterval: time.Second,
		logger:       slog.Default(),
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
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll drains the pending backlog, claiming batch after batch until a claim
// comes back empty so a burst does not wait out the poll interval.
func (w *Worker) poll() {
	for {
		n, err := w.processor.ProcessBatch(w.ctx, w.batchSize)
		if err != nil {
			if w.ctx.Err() == nil {
				w.logger.Error("failed to process pending batch", "error", err)
			}
			return
		}
		if n < w.batchSize {
			return
		}
		select {
		case <-w.ctx.Done():
			return
		default:
		}
	}
}

// Stop gracefully stops the worker, waiting for the in-flight batch.
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
