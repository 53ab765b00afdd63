// Package reconcile compares canonical voter versions with the search index and
// re-indexes documents that are missing or older than the record they project. After
// the walk it drops documents whose voter no longer exists.
//
// The sweep only reads the canonical store and writes through the projector. It never
// touches audit entries or reference status.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"enrollment/internal/reconcile/metrics"
	"enrollment/internal/search"
	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	"enrollment/pkg/platform/tracer"
	"enrollment/pkg/requestcontext"
)

// ErrSweepInProgress is returned when another sweep holds the lock.
var ErrSweepInProgress = errors.New("reconciliation sweep already running")

// Source pages canonical voter versions in id order.
type Source interface {
	ListVoterVersions(ctx context.Context, after id.VoterID, limit int) ([]models.VoterVersion, error)
}

// Projector is the part of search.Projector the sweep uses.
type Projector interface {
	Versions(ctx context.Context, voterIDs []string) (map[string]int64, error)
	IndexByID(ctx context.Context, voterID id.VoterID) error
	PruneOrphans(ctx context.Context, seen map[string]struct{}) (int, error)
}

// Stats summarizes one sweep.
type Stats struct {
	Scanned  int `json:"scanned"`
	Stale    int `json:"stale"`
	Missing  int `json:"missing"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
	Orphans  int `json:"orphans"`
}

const (
	defaultBatchSize   = 500
	defaultConcurrency = 4
	defaultLockKey     = "enrollment:reconcile:lock"
)

type Sweeper struct {
	source      Source
	projector   Projector
	locker      Locker
	lockKey     string
	lockTTL     time.Duration
	batchSize   int
	concurrency int
	interval    time.Duration
	metrics     *metrics.Metrics
	tracer      tracer.Tracer
	logger      *slog.Logger

	// single-flight within this process
	running sync.Mutex
}

type Option func(*Sweeper)

// WithLocker makes the sweep single-flight across processes.
func WithLocker(l Locker, key string, ttl time.Duration) Option {
	return func(s *Sweeper) {
		s.locker = l
		if key != "" {
			s.lockKey = key
		}
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency bounds parallel re-index calls per page.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Sweeper) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSweeper(source Source, projector Projector, opts ...Option) *Sweeper {
	s := &Sweeper{
		source:      source,
		projector:   projector,
		lockKey:     defaultLockKey,
		lockTTL:     10 * time.Minute,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		interval:    5 * time.Minute,
		tracer:      tracer.NewNoop(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a sweep every interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := s.Run(ctx)
			switch {
			case errors.Is(err, ErrSweepInProgress):
				s.logger.DebugContext(ctx, "reconciliation sweep skipped, another run holds the lock")
			case err != nil:
				s.logger.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
			case stats.Stale+stats.Missing+stats.Orphans > 0:
				s.logger.InfoContext(ctx, "reconciliation sweep repaired drift",
					"scanned", stats.Scanned,
					"stale", stats.Stale,
					"missing", stats.Missing,
					"repaired", stats.Repaired,
					"failed", stats.Failed,
					"orphans", stats.Orphans,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run performs one full sweep. It returns ErrSweepInProgress when a sweep is already
// running in this process or, with a locker configured, in another one.
func (s *Sweeper) Run(ctx context.Context) (stats Stats, err error) {
	if !s.running.TryLock() {
		s.countRun("skipped")
		return Stats{}, ErrSweepInProgress
	}
	defer s.running.Unlock()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, s.lockKey, s.lockTTL)
		if err != nil {
			s.countRun("failed")
			return Stats{}, err
		}
		if !ok {
			s.countRun("skipped")
			return Stats{}, ErrSweepInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "failed to release sweep lock", "error", err)
			}
		}()
	}

	ctx = requestcontext.WithActor(ctx, requestcontext.ActorSweep)
	ctx, span := s.tracer.Start(ctx, tracer.SpanReconcileRun, tracer.Int(tracer.AttrBatchSize, s.batchSize))
	start := time.Now()
	defer func() {
		span.SetAttributes(tracer.Int(tracer.AttrStale, stats.Stale+stats.Missing))
		span.End(err)
		if s.metrics != nil {
			s.metrics.ObserveDuration(time.Since(start).Seconds())
		}
	}()

	seen := make(map[string]struct{})
	after := id.VoterID{}
	for {
		if err := ctx.Err(); err != nil {
			s.countRun("failed")
			return stats, err
		}
		page, err := s.source.ListVoterVersions(ctx, after, s.batchSize)
		if err != nil {
			s.countRun("failed")
			return stats, fmt.Errorf("list voter versions: %w", err)
		}
		if len(page) == 0 {
			break
		}
		if err := s.sweepPage(ctx, page, &stats); err != nil {
			s.countRun("failed")
			return stats, err
		}
		for _, v := range page {
			seen[v.ID.String()] = struct{}{}
		}
		after = page[len(page)-1].ID
		if len(page) < s.batchSize {
			break
		}
	}

	orphans, err := s.projector.PruneOrphans(ctx, seen)
	stats.Orphans = orphans
	if s.metrics != nil {
		s.metrics.AddRepaired("orphan", orphans)
	}
	if err != nil {
		s.countRun("failed")
		return stats, fmt.Errorf("prune orphan documents: %w", err)
	}
	s.countRun("completed")
	return stats, nil
}

func (s *Sweeper) sweepPage(ctx context.Context, page []models.VoterVersion, stats *Stats) error {
	ids := make([]string, len(page))
	for i, v := range page {
		ids[i] = v.ID.String()
	}
	indexed, err := s.projector.Versions(ctx, ids)
	if err != nil {
		return fmt.Errorf("read index versions: %w", err)
	}

	var stale, missing []id.VoterID
	for _, v := range page {
		version, ok := indexed[v.ID.String()]
		switch {
		case !ok:
			missing = append(missing, v.ID)
		case version < search.VersionOf(v.UpdatedAt):
			stale = append(stale, v.ID)
		}
	}
	stats.Scanned += len(page)
	stats.Stale += len(stale)
	stats.Missing += len(missing)
	if s.metrics != nil {
		s.metrics.AddScanned(len(page))
	}

	for reason, ids := range map[string][]id.VoterID{"stale": stale, "missing": missing} {
		repaired, failed := s.repair(ctx, ids)
		stats.Repaired += repaired
		stats.Failed += failed
		if s.metrics != nil {
			s.metrics.AddRepaired(reason, repaired)
			s.metrics.AddRepairFailed(failed)
		}
	}
	return nil
}

// repair re-indexes ids with bounded parallelism. Individual failures are counted,
// not returned: the next sweep retries them.
func (s *Sweeper) repair(ctx context.Context, ids []id.VoterID) (repaired, failed int) {
	if len(ids) == 0 {
		return 0, 0
	}
	var ok, bad atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, voterID := range ids {
		g.Go(func() error {
			if err := s.projector.IndexByID(gctx, voterID); err != nil {
				bad.Add(1)
				s.logger.WarnContext(gctx, "sweep could not re-index voter",
					"voter_id", voterID.String(),
					"error", err,
				)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}

func (s *Sweeper) countRun(result string) {
	if s.metrics != nil {
		s.metrics.IncrementRun(result)
	}
}
