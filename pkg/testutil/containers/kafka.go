//go:build integration

package containers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"enrollment/pkg/platform/outbox"
)

// EventsTopic is the topic the outbox publishes enrollment events to.
const EventsTopic = "enrollment.events"

// eventsPartitions matches production so per-aggregate key ordering is exercised.
const eventsPartitions = 3

// KafkaContainer wraps a Redpanda broker with EventsTopic already provisioned.
type KafkaContainer struct {
	Container testcontainers.Container
	Brokers   string
}

// NewKafkaContainer starts a Redpanda container and creates EventsTopic.
func NewKafkaContainer(t *testing.T) *KafkaContainer {
	t.Helper()

	ctx := context.Background()

	container, err := kafka.Run(ctx,
		"redpandadata/redpanda:latest",
		kafka.WithClusterID("enrollment-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	kc := &KafkaContainer{
		Container: container,
		Brokers:   brokers[0],
	}

	if err := kc.EnsureTopics(ctx, eventsPartitions, EventsTopic); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to provision %s: %v", EventsTopic, err)
	}

	return kc
}

// EnsureTopics creates the topics with the given partition count. Topics that already
// exist are left as they are, so suites sharing the container can call it freely.
func (k *KafkaContainer) EnsureTopics(ctx context.Context, partitions int32, topics ...string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(k.Brokers))
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer client.Close()

	resp, err := kadm.NewClient(client).CreateTopics(ctx, partitions, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Reader tails topics from the earliest offset without joining a consumer group, so
// assertions never compete with the application consumer for partitions.
type Reader struct {
	client *kgo.Client
}

// NewReader returns a Reader over topics. It is closed when the test ends.
func (k *KafkaContainer) NewReader(t *testing.T, topics ...string) *Reader {
	t.Helper()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		t.Fatalf("failed to create kafka reader: %v", err)
	}
	t.Cleanup(client.Close)
	return &Reader{client: client}
}

// WaitForRecord polls until match accepts a record. It returns nil once timeout passes.
func (r *Reader) WaitForRecord(ctx context.Context, timeout time.Duration, match func(*kgo.Record) bool) *kgo.Record {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for ctx.Err() == nil {
		fetches := r.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		var found *kgo.Record
		fetches.EachRecord(func(rec *kgo.Record) {
			if found == nil && match(rec) {
				found = rec
			}
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// WaitForEntry waits for the published outbox entry with entryID and decodes it from
// the record headers. Both results are nil on timeout.
func (r *Reader) WaitForEntry(ctx context.Context, timeout time.Duration, entryID uuid.UUID) (*outbox.Entry, *kgo.Record, error) {
	rec := r.WaitForRecord(ctx, timeout, func(rec *kgo.Record) bool {
		return RecordHeaders(rec)[outbox.HeaderEntryID] == entryID.String()
	})
	if rec == nil {
		return nil, nil, nil
	}
	entry, err := outbox.EntryFromMessage(RecordHeaders(rec), rec.Value)
	if err != nil {
		return nil, rec, fmt.Errorf("decode entry %s: %w", entryID, err)
	}
	return entry, rec, nil
}

// RecordHeaders flattens record headers into a map. Later duplicates win.
func RecordHeaders(rec *kgo.Record) map[string]string {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	return headers
}
