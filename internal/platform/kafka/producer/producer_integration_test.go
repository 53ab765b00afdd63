//go:build integration

package producer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"enrollment/internal/platform/kafka/consumer"
	"enrollment/internal/platform/kafka/producer"
	"enrollment/pkg/platform/outbox"
	"enrollment/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())

	prod, err := producer.New(producer.Config{
		Brokers:         s.kafka.Brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *ProducerIntegrationSuite) TestPublishedEntryCarriesHeadersAndKey() {
	ctx := context.Background()
	reader := s.kafka.NewReader(s.T(), containers.EventsTopic)

	entry := outbox.NewEntry("voter", "5f0c0c1e-8c3e-4f4f-9a55-0f1c2b6a9e10", "voter.projection",
		[]byte(`{"voter_id":"5f0c0c1e-8c3e-4f4f-9a55-0f1c2b6a9e10"}`), time.Now())
	s.Require().NoError(outbox.NewPublisherSink(s.producer, containers.EventsTopic).Deliver(ctx, entry))

	got, record, err := reader.WaitForEntry(ctx, 10*time.Second, entry.ID)
	s.Require().NoError(err)
	s.Require().NotNil(record, "published entry should be consumable")

	s.Equal("voter:"+entry.AggregateID, string(record.Key))
	headers := containers.RecordHeaders(record)
	s.Equal(entry.ID.String(), headers[outbox.HeaderEntryID])
	s.Equal("voter.projection", headers[outbox.HeaderEventType])
	s.JSONEq(string(entry.Payload), string(record.Value))
	s.Equal(entry.AggregateType, got.AggregateType)
	s.Equal(entry.AggregateID, got.AggregateID)
}

func (s *ProducerIntegrationSuite) TestEntriesOfOneAggregateShareAPartition() {
	ctx := context.Background()
	reader := s.kafka.NewReader(s.T(), containers.EventsTopic)
	sink := outbox.NewPublisherSink(s.producer, containers.EventsTopic)

	voterID := "8d1f2e3c-4b5a-4c6d-8e7f-9a0b1c2d3e4f"
	var entries []*outbox.Entry
	for range 3 {
		entry := outbox.NewEntry("voter", voterID, "voter.projection",
			[]byte(`{"voter_id":"`+voterID+`"}`), time.Now())
		s.Require().NoError(sink.Deliver(ctx, entry))
		entries = append(entries, entry)
	}

	want := make(map[string]bool, len(entries))
	for _, entry := range entries {
		want[entry.ID.String()] = true
	}
	var records []*kgo.Record
	reader.WaitForRecord(ctx, 10*time.Second, func(r *kgo.Record) bool {
		if want[containers.RecordHeaders(r)[outbox.HeaderEntryID]] {
			records = append(records, r)
		}
		return len(records) == len(entries)
	})
	s.Require().Len(records, len(entries))

	partitions := map[int32]bool{}
	for i, record := range records {
		partitions[record.Partition] = true
		s.Equal(entries[i].ID.String(), containers.RecordHeaders(record)[outbox.HeaderEntryID],
			"entries must stay in publish order")
	}
	s.Len(partitions, 1)
}

func (s *ProducerIntegrationSuite) TestConsumerRebuildsPublishedEntry() {
	ctx := context.Background()
	topic := "enrollment-round-trip"
	s.Require().NoError(s.kafka.EnsureTopics(ctx, 1, topic))

	var (
		mu  sync.Mutex
		got []*outbox.Entry
	)
	c, err := consumer.New(consumer.Config{
		Brokers:    s.kafka.Brokers,
		GroupID:    "enrollment-round-trip",
		Topics:     []string{topic},
		MaxRetries: 1,
		RetryDelay: 100 * time.Millisecond,
	}, consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
		entry, err := outbox.EntryFromMessage(msg.Headers, msg.Value)
		if err != nil {
			return err
		}
		mu.Lock()
		got = append(got, entry)
		mu.Unlock()
		return nil
	}), nil)
	s.Require().NoError(err)
	c.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Stop(stopCtx)
	}()

	entry := outbox.NewEntry("reference", "0b6f3d7a-2f44-4a4f-8d7e-3c1f7b3d2a11", "reference.contacted",
		[]byte(`{"reference_id":"0b6f3d7a-2f44-4a4f-8d7e-3c1f7b3d2a11"}`), time.Now())
	s.Require().NoError(outbox.NewPublisherSink(s.producer, topic).Deliver(ctx, entry))

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 15*time.Second, 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Equal(entry.ID, got[0].ID)
	s.Equal("reference.contacted", got[0].EventType)
	s.Equal(entry.AggregateID, got[0].AggregateID)
	s.WithinDuration(entry.CreatedAt, got[0].CreatedAt, time.Millisecond)
}

func (s *ProducerIntegrationSuite) TestProducerHealthy() {
	s.NoError(s.producer.Health(context.Background()))
}
