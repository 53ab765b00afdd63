package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollment/internal/platform/kafka/producer"
)

type captureProducer struct {
	msgs []*producer.Message
}

func (c *captureProducer) Produce(_ context.Context, msg *producer.Message) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestPublisherSinkRoundTrip(t *testing.T) {
	p := &captureProducer{}
	sink := NewPublisherSink(p, "enrollment.events")
	created := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	entry, err := NewJSONEntry("reference", "r-1", "reference.contacted", map[string]string{"reference_id": "r-1"}, created)
	require.NoError(t, err)

	require.NoError(t, sink.Deliver(context.Background(), entry))
	require.Len(t, p.msgs, 1)
	msg := p.msgs[0]
	assert.Equal(t, "enrollment.events", msg.Topic)
	assert.Equal(t, "reference:r-1", string(msg.Key))

	decoded, err := EntryFromMessage(msg.Headers, msg.Value)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, decoded.ID)
	assert.Equal(t, "reference.contacted", decoded.EventType)
	assert.Equal(t, created, decoded.CreatedAt)

	var payload struct {
		ReferenceID string `json:"reference_id"`
	}
	require.NoError(t, decoded.Decode(&payload))
	assert.Equal(t, "r-1", payload.ReferenceID)
}

func TestEntryFromMessageRejectsMissingHeaders(t *testing.T) {
	_, err := EntryFromMessage(map[string]string{}, nil)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	handled := 0
	r.Handle("voter.projection", func(context.Context, *Entry) error {
		handled++
		return nil
	})

	require.NoError(t, r.Deliver(context.Background(), &Entry{EventType: "voter.projection"}))
	assert.Equal(t, 1, handled)

	err := r.Deliver(context.Background(), &Entry{EventType: "nope"})
	assert.ErrorIs(t, err, ErrNoHandler)
	assert.True(t, IsPermanent(err))
}
