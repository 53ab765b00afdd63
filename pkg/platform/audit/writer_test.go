package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "enrollment/pkg/platform/audit"
	"enrollment/pkg/platform/audit/store/memory"
	"enrollment/pkg/requestcontext"
)

type failingStore struct{ memory.Store }

func (f *failingStore) Append(context.Context, audit.Entry) error { return errors.New("disk full") }

type WriterSuite struct {
	suite.Suite
	store  *memory.Store
	writer *audit.Writer
	ctx    context.Context
	now    time.Time
}

func TestWriterSuite(t *testing.T) {
	suite.Run(t, new(WriterSuite))
}

func (s *WriterSuite) SetupTest() {
	s.store = memory.New()
	s.writer = audit.NewWriter(s.store, nil)
	s.now = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithClientIP(ctx, "203.0.113.9")
	ctx = requestcontext.WithDevice(ctx, "Chrome on Android")
	s.ctx = requestcontext.WithActor(ctx, requestcontext.Actor{ID: "admin-7", Role: requestcontext.RoleAdmin})
}

func (s *WriterSuite) TestRecordEnrichesFromContext() {
	err := s.writer.Record(s.ctx, audit.Entry{
		EntityType: audit.EntityVoter,
		EntityID:   "v-1",
		Action:     audit.ActionVoterVerified,
		Before:     audit.Snapshot(map[string]string{"verification_status": "UNVERIFIED"}),
		After:      audit.Snapshot(map[string]string{"verification_status": "VERIFIED"}),
	})
	s.Require().NoError(err)

	entries := s.store.All()
	s.Require().Len(entries, 1)
	e := entries[0]
	s.Equal("admin-7", e.ActorID)
	s.Equal("admin", e.ActorRole)
	s.Equal("203.0.113.9", e.ActorIP)
	s.Equal("Chrome on Android", e.Device)
	s.Equal("req-1", e.RequestID)
	s.Equal(s.now, e.Timestamp)
	s.NotEqual("", e.ID.String())
	s.JSONEq(`{"verification_status":"VERIFIED"}`, string(e.After))
}

func (s *WriterSuite) TestRecordRequiresActor() {
	err := s.writer.Record(context.Background(), audit.Entry{EntityType: audit.EntityVoter, EntityID: "v-1", Action: audit.ActionVoterCreated})
	s.ErrorIs(err, audit.ErrMissingActor)
	s.Empty(s.store.All())
}

func (s *WriterSuite) TestExplicitActorWins() {
	err := s.writer.Record(s.ctx, audit.Entry{
		EntityType: audit.EntityReference,
		EntityID:   "r-1",
		Action:     audit.ActionNotificationSent,
		ActorID:    requestcontext.ActorDispatcher.ID,
		ActorRole:  string(requestcontext.RoleSystem),
	})
	s.Require().NoError(err)
	s.Equal("system:dispatcher", s.store.All()[0].ActorID)
}

func (s *WriterSuite) TestStoreFailurePropagates() {
	w := audit.NewWriter(&failingStore{}, nil)
	err := w.Record(s.ctx, audit.Entry{EntityType: audit.EntityVoter, EntityID: "v-1", Action: audit.ActionVoterCreated})
	s.Require().Error(err)
	s.Contains(err.Error(), "disk full")
}

func (s *WriterSuite) TestHistoryNewestFirst() {
	for _, action := range []audit.Action{audit.ActionVoterCreated, audit.ActionVoterUpdated, audit.ActionVoterVerified} {
		s.Require().NoError(s.writer.Record(s.ctx, audit.Entry{EntityType: audit.EntityVoter, EntityID: "v-1", Action: action}))
	}
	s.Require().NoError(s.writer.Record(s.ctx, audit.Entry{EntityType: audit.EntityVoter, EntityID: "v-2", Action: audit.ActionVoterCreated}))

	history, err := s.writer.History(s.ctx, audit.EntityVoter, "v-1", 2)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(audit.ActionVoterVerified, history[0].Action)
	s.Equal(audit.ActionVoterUpdated, history[1].Action)
}

func (s *WriterSuite) TestSnapshotRestoreDropsUncommittedEntries() {
	restore := s.store.Snapshot()
	s.Require().NoError(s.writer.Record(s.ctx, audit.Entry{EntityType: audit.EntityVoter, EntityID: "v-1", Action: audit.ActionVoterCreated}))
	restore()
	s.Empty(s.store.All())
}
