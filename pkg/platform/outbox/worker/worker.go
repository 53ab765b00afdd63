package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"enrollment/pkg/platform/outbox"
	"enrollment/pkg/platform/outbox/metrics"
)

// Worker polls the outbox table and hands claimed entries to a sink.
type Worker struct {
	store        outbox.Store
	sink         outbox.Sink
	batchSize    int
	pollInterval time.Duration
	lease        time.Duration
	maxAttempts  int
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Worker.
type Option func(*Worker)

// WithBatchSize sets the maximum number of entries to claim per poll.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithPollInterval sets the interval between polls.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithLease sets how long a claimed entry is hidden from other workers.
func WithLease(lease time.Duration) Option {
	return func(w *Worker) {
		if lease > 0 {
			w.lease = lease
		}
	}
}

// WithMaxAttempts sets how many deliveries are attempted before dead-lettering.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithBackoff sets the retry delay bounds. The delay doubles per attempt.
func WithBackoff(base, max time.Duration) Option {
	return func(w *Worker) {
		w.baseBackoff = base
		w.maxBackoff = max
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

// New creates a new outbox worker.
func New(store outbox.Store, sink outbox.Sink, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		store:        store,
		sink:         sink,
		batchSize:    100,
		pollInterval: 500 * time.Millisecond,
		lease:        30 * time.Second,
		maxAttempts:  10,
		baseBackoff:  time.Second,
		maxBackoff:   5 * time.Minute,
		now:          time.Now,
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

// run is the main polling loop.
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
			w.Poll(w.ctx)
		}
	}
}

// Poll claims and delivers one batch. It returns the number of entries claimed.
func (w *Worker) Poll(ctx context.Context) int {
	start := time.Now()

	entries, err := w.store.Claim(ctx, w.batchSize, w.lease, w.now())
	if err != nil {
		if w.logger != nil {
			w.logger.ErrorContext(ctx, "failed to claim outbox entries", "error", err)
		}
		if w.metrics != nil {
			w.metrics.IncPollErrors()
		}
		return 0
	}

	if len(entries) == 0 {
		return 0
	}

	if w.metrics != nil {
		w.metrics.ObserveBatchSize(len(entries))
	}

	for _, entry := range entries {
		w.process(ctx, entry)
	}

	if w.metrics != nil {
		w.metrics.ObservePollDuration(time.Since(start).Seconds())
	}
	return len(entries)
}

// process delivers one entry and records the outcome.
func (w *Worker) process(ctx context.Context, entry *outbox.Entry) {
	start := time.Now()
	err := w.sink.Deliver(ctx, entry)
	if w.metrics != nil {
		w.metrics.ObserveDeliveryDuration(time.Since(start).Seconds())
	}

	if err == nil {
		if err := w.store.MarkProcessed(ctx, entry.ID, w.now()); err != nil {
			// Delivered but not marked: it will be delivered again and handlers are idempotent.
			if w.logger != nil {
				w.logger.ErrorContext(ctx, "failed to mark entry as processed",
					"id", entry.ID,
					"error", err,
				)
			}
			return
		}
		if w.metrics != nil {
			w.metrics.IncDelivered(entry.EventType)
		}
		return
	}

	dead := outbox.IsPermanent(err) || entry.Attempts >= w.maxAttempts
	now := w.now()
	retryAt := now.Add(w.backoff(entry.Attempts))
	if dead {
		retryAt = now
	}

	if w.logger != nil {
		w.logger.WarnContext(ctx, "outbox delivery failed",
			"id", entry.ID,
			"event_type", entry.EventType,
			"aggregate_id", entry.AggregateID,
			"attempts", entry.Attempts,
			"dead_letter", dead,
			"error", err,
		)
	}
	if w.metrics != nil {
		w.metrics.IncDeliveryFailures(entry.EventType)
		if dead {
			w.metrics.IncDeadLettered(entry.EventType)
		}
	}

	if markErr := w.store.MarkFailed(ctx, entry.ID, err.Error(), retryAt, dead); markErr != nil && w.logger != nil {
		w.logger.ErrorContext(ctx, "failed to record outbox failure",
			"id", entry.ID,
			"error", markErr,
		)
	}
}

func (w *Worker) backoff(attempts int) time.Duration {
	d := w.baseBackoff
	for i := 1; i < attempts && d < w.maxBackoff; i++ {
		d *= 2
	}
	if d > w.maxBackoff {
		d = w.maxBackoff
	}
	return d
}

// drain processes remaining entries during shutdown.
func (w *Worker) drain() {
	if w.logger != nil {
		w.logger.Info("draining outbox worker")
	}

	// Use a short timeout context for draining
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Claimed entries are leased, so failures are not re-claimed and the loop ends.
	for ctx.Err() == nil {
		if w.Poll(ctx) == 0 {
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

// UpdateMetrics updates the pending depth metric.
// Call this periodically from a separate goroutine if needed.
func (w *Worker) UpdateMetrics(ctx context.Context) error {
	if w.metrics == nil {
		return nil
	}

	count, err := w.store.CountPending(ctx)
	if err != nil {
		return err
	}

	w.metrics.SetPendingDepth(count)
	return nil
}
