package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"enrollment/internal/search/metrics"
	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	dErrors "enrollment/pkg/domain-errors"
	"enrollment/pkg/platform/circuit"
	"enrollment/pkg/platform/sentinel"
	platformsync "enrollment/pkg/platform/sync"
	"enrollment/pkg/platform/tracer"
)

// Source is the read side of the canonical store the projector rebuilds documents from.
type Source interface {
	GetVoter(ctx context.Context, voterID id.VoterID) (*models.Voter, error)
	ListReferences(ctx context.Context, voterID id.VoterID) ([]*models.Reference, error)
	ListVotersAfter(ctx context.Context, after id.VoterID, limit int) ([]*models.Voter, error)
	ListReferencesByVoters(ctx context.Context, voterIDs []id.VoterID) (map[id.VoterID][]*models.Reference, error)
}

// ErrCircuitOpen is returned while the index circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("search index circuit open")

const (
	defaultIndexTimeout = 2 * time.Second
	defaultBatchSize    = 200
	maxBatchSize        = 1000
)

// Projector pushes canonical voter state into the search index. It must only be called
// with committed data. Index failures are reported as IndexUnavailable and never roll
// back canonical writes; the reconciliation sweep repairs what was missed.
type Projector struct {
	index     Index
	source    Source
	timeout   time.Duration
	batchSize int
	breaker   *circuit.Breaker
	locks     *platformsync.ShardedMutex
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	logger    *slog.Logger
}

// Option configures the Projector.
type Option func(*Projector)

// WithTimeout bounds every index call. A timeout counts as a failure.
func WithTimeout(d time.Duration) Option {
	return func(p *Projector) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithBatchSize sets the bulk reindex page size, capped at 1000.
func WithBatchSize(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.batchSize = min(n, maxBatchSize)
		}
	}
}

// WithBreaker sets the circuit breaker guarding index calls.
func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Projector) {
		p.breaker = b
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Projector) {
		p.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(p *Projector) {
		p.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		p.logger = logger
	}
}

// NewProjector creates a projector over index, reading canonical state from source.
func NewProjector(index Index, source Source, opts ...Option) *Projector {
	p := &Projector{
		index:     index,
		source:    source,
		timeout:   defaultIndexTimeout,
		batchSize: defaultBatchSize,
		locks:     platformsync.NewShardedMutex(),
		tracer:    tracer.NewNoop(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.breaker == nil {
		p.breaker = circuit.New("search_index")
	}
	return p
}

// Index writes the document for v. It returns an IndexUnavailable error when the index
// fails, times out or the circuit is open.
func (p *Projector) Index(ctx context.Context, v *models.Voter, refs []*models.Reference) error {
	return p.locks.With(v.ID.String(), func() error {
		return p.write(ctx, v, refs)
	})
}

// IndexByID re-reads a voter from the canonical store and refreshes its document, or
// removes the document when the voter no longer exists. Canonical read errors are
// returned as-is so callers can retry.
//
// The read and the write happen under the voter's lock, so a removal in this process
// cannot be overtaken by a refresh that read the voter before it was deleted. Across
// processes that can still happen; the reconciliation sweep prunes such documents.
func (p *Projector) IndexByID(ctx context.Context, voterID id.VoterID) error {
	return p.locks.With(voterID.String(), func() error {
		v, err := p.source.GetVoter(ctx, voterID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return p.remove(ctx, voterID)
		}
		if err != nil {
			return fmt.Errorf("load voter %s for projection: %w", voterID, err)
		}
		refs, err := p.source.ListReferences(ctx, voterID)
		if err != nil {
			return fmt.Errorf("load references of %s for projection: %w", voterID, err)
		}
		return p.write(ctx, v, refs)
	})
}

// Remove deletes the document of a voter.
func (p *Projector) Remove(ctx context.Context, voterID id.VoterID) error {
	return p.locks.With(voterID.String(), func() error {
		return p.remove(ctx, voterID)
	})
}

func (p *Projector) write(ctx context.Context, v *models.Voter, refs []*models.Reference) (err error) {
	doc := Project(v, refs)
	ctx, span := p.tracer.Start(ctx, tracer.SpanSearchIndex, tracer.String(tracer.AttrVoterID, doc.VoterID))
	defer func() { span.End(err) }()

	var written bool
	err = p.call(ctx, "index", func(ctx context.Context) error {
		var putErr error
		written, putErr = p.index.Put(ctx, doc)
		return putErr
	})
	if err != nil {
		return p.unavailable(ctx, "index", doc.VoterID, err)
	}
	span.SetAttributes(tracer.Bool(tracer.AttrStale, !written))
	if !written && p.metrics != nil {
		p.metrics.IncrementStaleSkip()
	}
	return nil
}

func (p *Projector) remove(ctx context.Context, voterID id.VoterID) (err error) {
	ctx, span := p.tracer.Start(ctx, tracer.SpanSearchRemove, tracer.String(tracer.AttrVoterID, voterID.String()))
	defer func() { span.End(err) }()

	err = p.call(ctx, "remove", func(ctx context.Context) error {
		return p.index.Delete(ctx, voterID.String())
	})
	if err != nil {
		return p.unavailable(ctx, "remove", voterID.String(), err)
	}
	return nil
}

// BulkReindex indexes one page of voters after cursor (an opaque voter id, "" to start)
// and returns the cursor for the next page. done is true once the last page was written.
func (p *Projector) BulkReindex(ctx context.Context, cursor string) (next string, done bool, err error) {
	after := id.VoterID{}
	if cursor != "" {
		after, err = id.ParseVoterID(cursor)
		if err != nil {
			return "", false, dErrors.New(dErrors.CodeBadRequest, "invalid reindex cursor")
		}
	}
	ids, done, err := p.reindexPage(ctx, after)
	if err != nil {
		return cursor, false, err
	}
	if len(ids) == 0 {
		return "", true, nil
	}
	return ids[len(ids)-1].String(), done, nil
}

func (p *Projector) reindexPage(ctx context.Context, after id.VoterID) (ids []id.VoterID, done bool, err error) {
	ctx, span := p.tracer.Start(ctx, tracer.SpanSearchBulk, tracer.Int(tracer.AttrBatchSize, p.batchSize))
	defer func() { span.End(err) }()

	voters, err := p.source.ListVotersAfter(ctx, after, p.batchSize)
	if err != nil {
		return nil, false, fmt.Errorf("list voters for reindex: %w", err)
	}
	if len(voters) == 0 {
		return nil, true, nil
	}

	ids = make([]id.VoterID, len(voters))
	for i, v := range voters {
		ids[i] = v.ID
	}
	refs, err := p.source.ListReferencesByVoters(ctx, ids)
	if err != nil {
		return nil, false, fmt.Errorf("list references for reindex: %w", err)
	}
	docs := make([]Document, len(voters))
	for i, v := range voters {
		docs[i] = Project(v, refs[v.ID])
	}

	err = p.call(ctx, "bulk", func(ctx context.Context) error {
		return p.index.PutBatch(ctx, docs)
	})
	if err != nil {
		return nil, false, p.unavailable(ctx, "bulk", after.String(), err)
	}
	if p.metrics != nil {
		p.metrics.AddReindexed(len(docs))
	}
	return ids, len(voters) < p.batchSize, nil
}

// RebuildStats summarizes a full rebuild.
type RebuildStats struct {
	Indexed        int `json:"indexed"`
	Batches        int `json:"batches"`
	OrphansRemoved int `json:"orphans_removed"`
}

// Rebuild reindexes every voter and then removes documents whose voter no longer
// exists. It is idempotent and safe to run while writes continue.
func (p *Projector) Rebuild(ctx context.Context) (RebuildStats, error) {
	var stats RebuildStats
	seen := make(map[string]struct{})
	after := id.VoterID{}
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ids, done, err := p.reindexPage(ctx, after)
		if err != nil {
			return stats, err
		}
		stats.Batches++
		stats.Indexed += len(ids)
		for _, voterID := range ids {
			seen[voterID.String()] = struct{}{}
		}
		if done {
			break
		}
		after = ids[len(ids)-1]
	}

	removed, err := p.pruneOrphans(ctx, seen)
	stats.OrphansRemoved = removed
	if err != nil {
		return stats, err
	}
	p.logger.InfoContext(ctx, "search index rebuilt",
		"indexed", stats.Indexed,
		"batches", stats.Batches,
		"orphans_removed", stats.OrphansRemoved,
	)
	return stats, nil
}

// PruneOrphans removes indexed documents whose id is not in seen and whose voter is
// gone from the canonical store. It catches documents re-created by a refresh in
// another process that read the voter before it was deleted.
func (p *Projector) PruneOrphans(ctx context.Context, seen map[string]struct{}) (int, error) {
	return p.pruneOrphans(ctx, seen)
}

// pruneOrphans deletes indexed documents that were not seen during the rebuild and whose
// voter is confirmed gone. Voters created after their page was passed are kept.
func (p *Projector) pruneOrphans(ctx context.Context, seen map[string]struct{}) (int, error) {
	var candidates []string
	listed := make(map[string]struct{})
	var cursor uint64
	for {
		var ids []string
		err := p.call(ctx, "scan", func(ctx context.Context) error {
			page, next, scanErr := p.index.ScanIDs(ctx, cursor, p.batchSize)
			if scanErr != nil {
				return scanErr
			}
			ids, cursor = page, next
			return nil
		})
		if err != nil {
			return 0, p.unavailable(ctx, "scan", "", err)
		}
		for _, docID := range ids {
			if _, ok := seen[docID]; ok {
				continue
			}
			if _, ok := listed[docID]; !ok {
				listed[docID] = struct{}{}
				candidates = append(candidates, docID)
			}
		}
		if cursor == 0 {
			break
		}
	}

	removed := 0
	for _, docID := range candidates {
		if voterID, err := id.ParseVoterID(docID); err == nil {
			_, err = p.source.GetVoter(ctx, voterID)
			if err == nil {
				continue
			}
			if !errors.Is(err, sentinel.ErrNotFound) {
				return removed, fmt.Errorf("check orphan %s: %w", docID, err)
			}
		}
		if err := p.call(ctx, "remove", func(ctx context.Context) error {
			return p.index.Delete(ctx, docID)
		}); err != nil {
			return removed, p.unavailable(ctx, "remove", docID, err)
		}
		removed++
	}
	if p.metrics != nil && removed > 0 {
		p.metrics.AddOrphansRemoved(removed)
	}
	return removed, nil
}

// Versions returns the indexed version of each voter, bounded by the index timeout.
func (p *Projector) Versions(ctx context.Context, voterIDs []string) (map[string]int64, error) {
	var out map[string]int64
	err := p.call(ctx, "versions", func(ctx context.Context) error {
		var err error
		out, err = p.index.Versions(ctx, voterIDs)
		return err
	})
	if err != nil {
		return nil, p.unavailable(ctx, "versions", "", err)
	}
	return out, nil
}

// Search runs a field query against the index.
func (p *Projector) Search(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}
	var res Result
	err := p.call(ctx, "query", func(ctx context.Context) error {
		var err error
		res, err = p.index.Query(ctx, q)
		return err
	})
	if err != nil {
		return Result{}, p.unavailable(ctx, "query", "", err)
	}
	return res, nil
}

// Healthy reports an error while the circuit breaker is open.
func (p *Projector) Healthy(_ context.Context) error {
	if p.breaker.IsOpen() {
		return ErrCircuitOpen
	}
	return nil
}

// call runs fn through the breaker with the index timeout applied.
func (p *Projector) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !p.breaker.Allow() {
		if p.metrics != nil {
			p.metrics.IncrementCircuitRejected()
		}
		return ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if p.metrics != nil {
		p.metrics.ObserveLatency(op, time.Since(start).Seconds())
	}

	if err != nil {
		if change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "search index circuit opened", "operation", op)
			if p.metrics != nil {
				p.metrics.SetCircuitOpen(true)
			}
		}
		return err
	}
	if change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "search index circuit closed")
		if p.metrics != nil {
			p.metrics.SetCircuitOpen(false)
		}
	}
	if p.metrics != nil {
		p.metrics.IncrementWrite(op)
	}
	return nil
}

func (p *Projector) unavailable(ctx context.Context, op, voterID string, err error) error {
	if p.metrics != nil {
		p.metrics.IncrementFailure(op)
	}
	p.logger.WarnContext(ctx, "search index call failed",
		"operation", op,
		"voter_id", voterID,
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeIndexUnavailable, "search index unavailable")
}
