package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollment/internal/notify"
	"enrollment/internal/voter/models"
	"enrollment/internal/voter/store"
	id "enrollment/pkg/domain"
	audit "enrollment/pkg/platform/audit"
	auditmemory "enrollment/pkg/platform/audit/store/memory"
	txcontext "enrollment/pkg/platform/tx"
	"enrollment/pkg/requestcontext"
)

type stubSource struct {
	pending []models.PendingNotification
	query   models.PendingQuery
}

func (s *stubSource) ListPendingNotifications(_ context.Context, q models.PendingQuery) ([]models.PendingNotification, error) {
	s.query = q
	if len(s.pending) > q.Limit {
		return s.pending[:q.Limit], nil
	}
	return s.pending, nil
}

type stubSender struct {
	results map[id.ReferenceID]notify.Result
	errs    map[id.ReferenceID]error
	calls   []id.ReferenceID
}

func (s *stubSender) Dispatch(_ context.Context, refID id.ReferenceID) (notify.Result, error) {
	s.calls = append(s.calls, refID)
	return s.results[refID], s.errs[refID]
}

func TestRetryWorkerRunOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	delivered, failed, broken := id.NewReferenceID(), id.NewReferenceID(), id.NewReferenceID()
	source := &stubSource{pending: []models.PendingNotification{
		{ReferenceID: delivered}, {ReferenceID: failed}, {ReferenceID: broken},
	}}
	sender := &stubSender{
		results: map[id.ReferenceID]notify.Result{
			delivered: {Outcome: notify.OutcomeDelivered},
			failed:    {Outcome: notify.OutcomeFailed, Reason: notify.ReasonTimeout},
		},
		errs: map[id.ReferenceID]error{broken: errors.New("db down")},
	}

	w, err := notify.NewRetryWorker(source, sender,
		notify.WithRetryGrace(5*time.Minute),
		notify.WithRetryMaxAttempts(3),
		notify.WithRetryClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	res, err := w.RunOnce(context.Background())
	require.Error(t, err, "one broken reference is reported")
	assert.Equal(t, notify.RetryResult{Attempted: 3, Delivered: 1, Failed: 1}, res)
	assert.Equal(t, now.Add(-5*time.Minute), source.query.StatusBefore)
	assert.Equal(t, now, source.query.DueBy)
	assert.Equal(t, 3, source.query.MaxAttempts)
	assert.Len(t, sender.calls, 3, "a failure does not stop the batch")
}

func TestRetryWorkerRespectsBatchSize(t *testing.T) {
	source := &stubSource{pending: []models.PendingNotification{
		{ReferenceID: id.NewReferenceID()}, {ReferenceID: id.NewReferenceID()}, {ReferenceID: id.NewReferenceID()},
	}}
	sender := &stubSender{results: map[id.ReferenceID]notify.Result{}}
	w, err := notify.NewRetryWorker(source, sender, notify.WithRetryBatchSize(2))
	require.NoError(t, err)

	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 2, res.Skipped)
}

func TestNewRetryWorkerRequiresDependencies(t *testing.T) {
	_, err := notify.NewRetryWorker(nil, &stubSender{})
	assert.Error(t, err)
}

// contactChannel accepts every number except the rejected one.
type contactChannel struct {
	rejected string
}

func (c contactChannel) Name() string { return "test" }

func (c contactChannel) Send(_ context.Context, to, _ string, _ []string) (bool, string, error) {
	if to == c.rejected {
		return false, "", nil
	}
	return true, "msg-" + to, nil
}

func seedContacted(t *testing.T, s *store.InMemoryStore, identity, contact string, changedAt time.Time) id.ReferenceID {
	t.Helper()
	ctx := context.Background()
	v := &models.Voter{
		ID:                 id.NewVoterID(),
		IdentityNumber:     identity,
		FullName:           "Asha Devi",
		VerificationStatus: models.VerificationUnverified,
		CreatedAt:          changedAt,
		UpdatedAt:          changedAt,
	}
	require.NoError(t, s.CreateVoter(ctx, v))
	ref := &models.Reference{
		ID:              id.NewReferenceID(),
		VoterID:         v.ID,
		Name:            "Ravi",
		Contact:         contact,
		Status:          models.ReferenceContacted,
		StatusUpdatedAt: changedAt,
		CreatedAt:       changedAt,
	}
	require.NoError(t, s.CreateReference(ctx, ref))
	return ref.ID
}

func TestRetryWorkerBacksOffRejectedReferences(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	voters := store.NewInMemory()
	audits := auditmemory.New()
	rejected := seedContacted(t, voters, "100000000001", "+911111111111", now.Add(-time.Hour))
	deliverable := seedContacted(t, voters, "100000000002", "+912222222222", now.Add(-30*time.Minute))

	dispatcher := notify.NewDispatcher(voters, txcontext.NewMemoryRunner(voters, audits), audit.NewWriter(audits, nil),
		contactChannel{rejected: "+911111111111"},
		notify.WithBackoff(10*time.Minute, time.Hour),
	)
	clock := now
	w, err := notify.NewRetryWorker(voters, dispatcher,
		notify.WithRetryGrace(time.Minute),
		notify.WithRetryBatchSize(1),
		notify.WithRetryMaxAttempts(2),
		notify.WithRetryClock(func() time.Time { return clock }),
	)
	require.NoError(t, err)

	count := func(refID id.ReferenceID, action audit.Action) int {
		entries, err := audits.ListByEntity(context.Background(), audit.EntityReference, refID.String(), 0)
		require.NoError(t, err)
		n := 0
		for _, e := range entries {
			if e.Action == action {
				n++
			}
		}
		return n
	}
	pass := func() {
		_, err := w.RunOnce(requestcontext.WithTime(context.Background(), clock))
		require.NoError(t, err)
	}

	for range 5 {
		pass()
	}
	assert.Equal(t, 1, count(rejected, audit.ActionNotificationFailed), "a failed notice waits out its backoff")
	assert.Equal(t, 1, count(deliverable, audit.ActionNotificationSent), "a failing reference does not starve later ones")

	got, err := voters.GetReference(context.Background(), rejected)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NotifyAttempts)
	require.NotNil(t, got.NextNotifyAt)
	assert.Equal(t, now.Add(10*time.Minute), *got.NextNotifyAt)

	clock = now.Add(11 * time.Minute)
	pass()
	assert.Equal(t, 2, count(rejected, audit.ActionNotificationFailed))

	clock = now.Add(48 * time.Hour)
	pass()
	pass()
	assert.Equal(t, 2, count(rejected, audit.ActionNotificationFailed), "the attempt cap stops automatic retries")
}
