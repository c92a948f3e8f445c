package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "activityhub/internal/app/outbox"
	"activityhub/internal/infra/broker/kafka"
)

func record(id string) appoutbox.EventRecord {
	return appoutbox.EventRecord{
		ID:         id,
		Name:       "booking.confirmed",
		Payload:    []byte(`{"BookingID":"b1","Quantity":2}`),
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Aggregate:  "b1",
		Headers:    map[string]string{"traceparent": "00-abc-def-01"},
	}
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "booking.events.v1", TopicFor("", "booking.confirmed"))
	assert.Equal(t, "prod.window.events.v1", TopicFor("prod.", "window.closed"))
	assert.Equal(t, "misc.events.v1", TopicFor("", "misc"))
}

func TestEnvelopeKeepsRecordIdentity(t *testing.T) {
	payload, headers, err := Encode(record("evt-1"), "")
	require.NoError(t, err)
	assert.Equal(t, cloudEventsContentType, headers["content-type"])
	assert.Equal(t, "00-abc-def-01", headers["traceparent"])

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, "booking.confirmed.v1", raw["type"])
	assert.Equal(t, defaultSource, raw["source"])
	assert.Equal(t, "b1", raw["subject"])

	back, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", back.ID)
	assert.Equal(t, "booking.confirmed", back.Name)
	assert.JSONEq(t, `{"BookingID":"b1","Quantity":2}`, string(back.Payload))
	assert.True(t, back.OccurredAt.Equal(record("evt-1").OccurredAt))
}

func TestEncodeRejectsNonJSONPayload(t *testing.T) {
	rec := record("evt-1")
	rec.Payload = []byte("{broken")
	_, _, err := Encode(rec, "")
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestDecodeRejectsMissingFields(t *testing.T) {
	_, err := Decode([]byte(`{"specversion":"1.0"}`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
	_, err = Decode([]byte(`nope`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestBrokerPublisherSendsCloudEvent(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "test.booking.events.v1" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "b1" {
			return errors.New("unexpected key " + string(key))
		}
		value, _ := msg.Value.Encode()
		_, err := Decode(value)
		return err
	})
	p := BrokerPublisher{Producer: kafka.NewProducerFrom(sp), TopicPrefix: "test."}

	require.NoError(t, p.Publish(context.Background(), record("evt-1")))
	require.NoError(t, sp.Close())
}

type fakeQueue struct {
	docs   []*EventDocument
	sent   []string
	failed map[string]time.Time
}

func (q *fakeQueue) Claim(context.Context, string) (*EventDocument, error) {
	if len(q.docs) == 0 {
		return nil, nil
	}
	doc := q.docs[0]
	q.docs = q.docs[1:]
	return doc, nil
}

func (q *fakeQueue) MarkSent(_ context.Context, id string) error {
	q.sent = append(q.sent, id)
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id string, next time.Time, _ string) error {
	if q.failed == nil {
		q.failed = map[string]time.Time{}
	}
	q.failed[id] = next
	return nil
}

func document(id string, attempts int) *EventDocument {
	rec := record(id)
	return &EventDocument{ID: rec.ID, Name: rec.Name, Payload: rec.Payload, OccurredAt: rec.OccurredAt, Aggregate: rec.Aggregate, Attempts: attempts}
}

func TestWorkerDrainRelaysAndBacksOff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	queue := &fakeQueue{docs: []*EventDocument{document("ok", 0), document("bad", 1), document("ok2", 0)}}
	var delivered []string
	w := &Worker{
		Queue: queue,
		Publisher: PublisherFunc(func(_ context.Context, rec appoutbox.EventRecord) error {
			if rec.ID == "bad" {
				return errors.New("broker down")
			}
			delivered = append(delivered, rec.ID)
			return nil
		}),
		Backoff: []time.Duration{time.Second, 10 * time.Second},
		now:     func() time.Time { return now },
	}

	sent, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"ok", "ok2"}, delivered)
	assert.Equal(t, []string{"ok", "ok2"}, queue.sent)
	assert.Equal(t, now.Add(10*time.Second), queue.failed["bad"])
}

func TestWorkerBatchSizeBoundsDrain(t *testing.T) {
	queue := &fakeQueue{docs: []*EventDocument{document("a", 0), document("b", 0), document("c", 0)}}
	w := &Worker{Queue: queue, Publisher: PublisherFunc(func(context.Context, appoutbox.EventRecord) error { return nil }), BatchSize: 2}

	sent, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, queue.docs, 1)
}

func TestWorkerNextRetryUsesLastStepWhenExhausted(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &Worker{Backoff: []time.Duration{time.Second}, now: func() time.Time { return now }}
	assert.Equal(t, now.Add(time.Second), w.nextRetry(5))
	w.Backoff = nil
	assert.Equal(t, now.Add(5*time.Second), w.nextRetry(0))
}

func TestWorkerRequiresDependencies(t *testing.T) {
	w := &Worker{}
	assert.ErrorIs(t, w.Run(context.Background()), ErrWorkerNotConfigured)
}
