// Package notify sends the one-time contact notice to a reference.
//
// The notification flag on the reference is the only deduplication: it is set after the
// channel accepts a message and never cleared. Dispatch holds the reference row lock
// across the channel call, so concurrent jobs for one reference serialize and the
// second sees the flag.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"enrollment/internal/notify/metrics"
	"enrollment/internal/verification"
	"enrollment/internal/voter/models"
	id "enrollment/pkg/domain"
	audit "enrollment/pkg/platform/audit"
	"enrollment/pkg/platform/outbox"
	"enrollment/pkg/platform/privacy"
	"enrollment/pkg/platform/sentinel"
	"enrollment/pkg/platform/tracer"
	txcontext "enrollment/pkg/platform/tx"
	"enrollment/pkg/requestcontext"
)

// Outcome is the result of one contact notice attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Result reports what happened to a notice. Reason is set for Failed and Skipped.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
}

// Skip and failure reasons.
const (
	ReasonAlreadySent    = "already_sent"
	ReasonNotContacted   = "not_contacted"
	ReasonDeleted        = "reference_deleted"
	ReasonTimeout        = "timeout"
	ReasonRejected       = "rejected"
	ReasonChannelError   = "channel_error"
	ReasonMissingContact = "missing_contact"
)

// VoterSummary is the part of the voter a notice mentions.
type VoterSummary struct {
	VoterID  id.VoterID
	FullName string
}

// Store is the canonical reference store seen by the dispatcher.
type Store interface {
	LockReference(ctx context.Context, refID id.ReferenceID) (*models.Reference, error)
	GetVoter(ctx context.Context, voterID id.VoterID) (*models.Voter, error)
	MarkNotificationSent(ctx context.Context, refID id.ReferenceID, at time.Time) error
	RecordNotificationFailure(ctx context.Context, refID id.ReferenceID, attempts int, nextAttemptAt time.Time) error
}

// Auditor appends audit entries inside the caller's transaction.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

const (
	defaultSendTimeout = 10 * time.Second
	defaultTxBudget    = 5 * time.Second
	defaultBackoff     = 5 * time.Minute
	defaultMaxBackoff  = 6 * time.Hour
)

type Dispatcher struct {
	store      Store
	tx         txcontext.Runner
	auditor    Auditor
	channel    Channel
	templateID string
	timeout    time.Duration
	txBudget   time.Duration
	backoff    time.Duration
	maxBackoff time.Duration
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	logger     *slog.Logger
}

type Option func(*Dispatcher)

// WithTemplate sets the provider template used for the contact notice.
func WithTemplate(templateID string) Option {
	return func(d *Dispatcher) {
		d.templateID = templateID
	}
}

// WithSendTimeout bounds each channel call. A timeout counts as a failure.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithTxBudget sets the time the dispatch transaction gets on top of the send timeout
// for its own reads and writes.
func WithTxBudget(budget time.Duration) Option {
	return func(d *Dispatcher) {
		if budget > 0 {
			d.txBudget = budget
		}
	}
}

// WithBackoff sets the delay before a failed notice is due again. It doubles with each
// failure up to maxDelay.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(d *Dispatcher) {
		if base > 0 {
			d.backoff = base
		}
		if maxDelay > 0 {
			d.maxBackoff = maxDelay
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher sending through channel.
func NewDispatcher(store Store, tx txcontext.Runner, auditor Auditor, channel Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		tx:         tx,
		auditor:    auditor,
		channel:    channel,
		templateID: "reference_contact",
		timeout:    defaultSendTimeout,
		txBudget:   defaultTxBudget,
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
		tracer:     tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// SendReferenceContactNotice calls the channel for ref. It does not touch the store;
// Dispatch records the outcome.
func (d *Dispatcher) SendReferenceContactNotice(ctx context.Context, ref *models.Reference, voter VoterSummary) (result Result) {
	if ref.NotificationSent {
		return Result{Outcome: OutcomeSkipped, Reason: ReasonAlreadySent}
	}
	if ref.Contact == "" {
		return Result{Outcome: OutcomeFailed, Reason: ReasonMissingContact}
	}

	var sendErr error
	ctx, span := d.tracer.Start(ctx, tracer.SpanNotifySend,
		tracer.String(tracer.AttrReferenceID, ref.ID.String()),
		tracer.String(tracer.AttrContactHash, tracer.HashContact(ref.Contact)),
	)
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, string(result.Outcome)))
		span.End(sendErr)
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	params := []string{ref.Name, voter.FullName}
	accepted, messageID, err := d.channel.Send(sendCtx, ref.Contact, d.templateID, params)
	if d.metrics != nil {
		d.metrics.ObserveSend(d.channel.Name(), time.Since(start).Seconds())
	}

	// an acknowledgement wins even when it arrives as the deadline passes: the provider
	// has the message and sending it again would duplicate it
	switch {
	case accepted && err == nil:
		return Result{Outcome: OutcomeDelivered, MessageID: messageID}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(sendCtx.Err(), context.DeadlineExceeded):
		sendErr = fmt.Errorf("send contact notice: %w", context.DeadlineExceeded)
		return Result{Outcome: OutcomeFailed, Reason: ReasonTimeout}
	case err != nil:
		sendErr = err
		return Result{Outcome: OutcomeFailed, Reason: ReasonChannelError + ": " + err.Error()}
	default:
		return Result{Outcome: OutcomeFailed, Reason: ReasonRejected}
	}
}

// Dispatch sends the contact notice of refID unless it was already sent or no longer
// qualifies. The returned error covers store failures only; a failed send is reported
// in the Result, recorded as a notification_failed audit entry and scheduled for retry
// with backoff.
//
// The transaction gets the send timeout plus the tx budget, so a send that runs out
// its timeout still leaves time to record the failure.
func (d *Dispatcher) Dispatch(ctx context.Context, refID id.ReferenceID) (Result, error) {
	if _, ok := requestcontext.ActorFrom(ctx); !ok {
		ctx = requestcontext.WithActor(ctx, requestcontext.ActorDispatcher)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout+d.txBudget)
	defer cancel()

	var result Result
	var contact string
	err := d.tx.RunInTx(ctx, func(ctx context.Context) error {
		ref, err := d.store.LockReference(ctx, refID)
		if errors.Is(err, sentinel.ErrNotFound) {
			result = Result{Outcome: OutcomeSkipped, Reason: ReasonDeleted}
			return nil
		}
		if err != nil {
			return err
		}
		contact = ref.Contact
		if ref.NotificationSent {
			result = Result{Outcome: OutcomeSkipped, Reason: ReasonAlreadySent}
			return nil
		}
		if !verification.NeedsNotice(ref) {
			result = Result{Outcome: OutcomeSkipped, Reason: ReasonNotContacted}
			return nil
		}
		voter, err := d.store.GetVoter(ctx, ref.VoterID)
		if err != nil {
			return err
		}

		result = d.SendReferenceContactNotice(ctx, ref, VoterSummary{VoterID: voter.ID, FullName: voter.FullName})
		now := requestcontext.Now(ctx)
		if result.Outcome != OutcomeDelivered {
			attempts := ref.NotifyAttempts + 1
			next := now.Add(d.delayAfter(attempts))
			if err := d.store.RecordNotificationFailure(ctx, refID, attempts, next); err != nil {
				return err
			}
			return d.auditor.Record(ctx, audit.Entry{
				EntityType: audit.EntityReference,
				EntityID:   refID.String(),
				Action:     audit.ActionNotificationFailed,
				After: audit.Snapshot(map[string]any{
					"reason":          result.Reason,
					"channel":         d.channel.Name(),
					"notify_attempts": attempts,
					"next_notify_at":  next,
				}),
			})
		}

		if err := d.store.MarkNotificationSent(ctx, refID, now); err != nil {
			return err
		}
		return d.auditor.Record(ctx, audit.Entry{
			EntityType: audit.EntityReference,
			EntityID:   refID.String(),
			Action:     audit.ActionNotificationSent,
			Before:     audit.Snapshot(map[string]bool{"notification_sent": false}),
			After: audit.Snapshot(map[string]any{
				"notification_sent":    true,
				"notification_sent_at": now,
				"message_id":           result.MessageID,
				"channel":              d.channel.Name(),
			}),
		})
	})
	if err != nil {
		if result.Outcome == OutcomeDelivered {
			// accepted by the channel but the flag did not commit
			d.logger.ErrorContext(ctx, "contact notice sent but not recorded",
				"reference_id", refID.String(),
				"message_id", result.MessageID,
				"error", err,
			)
		}
		return Result{}, fmt.Errorf("dispatch contact notice %s: %w", refID, err)
	}

	if d.metrics != nil {
		d.metrics.IncrementOutcome(string(result.Outcome))
	}
	d.log(ctx, refID, contact, result)
	return result, nil
}

// delayAfter returns the backoff after the given number of failed attempts.
func (d *Dispatcher) delayAfter(attempts int) time.Duration {
	delay := d.backoff
	for i := 1; i < attempts && delay < d.maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, d.maxBackoff)
}

// HandleContacted is the outbox handler for reference.contacted jobs. Failed sends
// are not retried by the outbox; the retry worker picks them up after the grace period.
func (d *Dispatcher) HandleContacted(ctx context.Context, entry *outbox.Entry) error {
	var payload models.ContactedPayload
	if err := entry.Decode(&payload); err != nil {
		return err
	}
	refID, err := id.ParseReferenceID(payload.ReferenceID)
	if err != nil {
		return outbox.Permanent(err)
	}
	_, err = d.Dispatch(ctx, refID)
	return err
}

func (d *Dispatcher) log(ctx context.Context, refID id.ReferenceID, contact string, result Result) {
	attrs := []any{
		"reference_id", refID.String(),
		"to", privacy.MaskContact(contact),
		"outcome", string(result.Outcome),
		"request_id", requestcontext.RequestID(ctx),
	}
	switch result.Outcome {
	case OutcomeDelivered:
		d.logger.InfoContext(ctx, "contact notice delivered", append(attrs, "message_id", result.MessageID)...)
	case OutcomeFailed:
		d.logger.WarnContext(ctx, "contact notice failed", append(attrs, "reason", result.Reason)...)
	default:
		d.logger.DebugContext(ctx, "contact notice skipped", append(attrs, "reason", result.Reason)...)
	}
}
