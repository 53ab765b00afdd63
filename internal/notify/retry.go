package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"enrollment/internal/notify/metrics"
	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	"enrollment/pkg/requestcontext"
)

// PendingSource lists references that qualify for a notice but have none yet.
type PendingSource interface {
	ListPendingNotifications(ctx context.Context, q models.PendingQuery) ([]models.PendingNotification, error)
}

// Sender is the part of the Dispatcher the retry worker drives.
type Sender interface {
	Dispatch(ctx context.Context, refID id.ReferenceID) (Result, error)
}

// RetryResult summarizes one retry pass.
type RetryResult struct {
	Attempted int
	Delivered int
	Failed    int
	Skipped   int
}

// RetryWorker periodically re-dispatches notices that failed or whose job was lost.
// References changed within the grace period are left to the outbox job. A reference
// is retried only once its backoff has elapsed and until it reaches maxAttempts; past
// the cap only a manual retry sends it.
type RetryWorker struct {
	source      PendingSource
	sender      Sender
	interval    time.Duration
	grace       time.Duration
	batchSize   int
	maxAttempts int
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type RetryOption func(*RetryWorker)

func WithRetryInterval(interval time.Duration) RetryOption {
	return func(w *RetryWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithRetryGrace(grace time.Duration) RetryOption {
	return func(w *RetryWorker) {
		if grace >= 0 {
			w.grace = grace
		}
	}
}

func WithRetryBatchSize(n int) RetryOption {
	return func(w *RetryWorker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithRetryMaxAttempts caps automatic retries per reference.
func WithRetryMaxAttempts(n int) RetryOption {
	return func(w *RetryWorker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithRetryClock(now func() time.Time) RetryOption {
	return func(w *RetryWorker) {
		w.now = now
	}
}

func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(w *RetryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithRetryMetrics(m *metrics.Metrics) RetryOption {
	return func(w *RetryWorker) {
		w.metrics = m
	}
}

func NewRetryWorker(source PendingSource, sender Sender, opts ...RetryOption) (*RetryWorker, error) {
	if source == nil || sender == nil {
		return nil, fmt.Errorf("source and sender are required")
	}
	w := &RetryWorker{
		source:      source,
		sender:      sender,
		interval:    time.Minute,
		grace:       5 * time.Minute,
		batchSize:   100,
		maxAttempts: 8,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Start runs retry passes until ctx is cancelled.
func (w *RetryWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if res, err := w.RunOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "notification retry failed", "error", err)
			} else if res.Attempted > 0 {
				w.logger.InfoContext(ctx, "notification retry pass",
					"attempted", res.Attempted,
					"delivered", res.Delivered,
					"failed", res.Failed,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce dispatches one batch of pending notices. Errors are aggregated so one bad
// reference does not block the rest.
func (w *RetryWorker) RunOnce(ctx context.Context) (RetryResult, error) {
	now := w.now()
	pending, err := w.source.ListPendingNotifications(ctx, models.PendingQuery{
		StatusBefore: now.Add(-w.grace),
		DueBy:        now,
		MaxAttempts:  w.maxAttempts,
		Limit:        w.batchSize,
	})
	if err != nil {
		return RetryResult{}, fmt.Errorf("list pending notifications: %w", err)
	}
	if w.metrics != nil {
		w.metrics.AddRetries(len(pending))
	}

	ctx = requestcontext.WithActor(ctx, requestcontext.ActorDispatcher)
	var res RetryResult
	var errs []error
	for _, p := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res.Attempted++
		result, err := w.sender.Dispatch(ctx, p.ReferenceID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch result.Outcome {
		case OutcomeDelivered:
			res.Delivered++
		case OutcomeFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}
