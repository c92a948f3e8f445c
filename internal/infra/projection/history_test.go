package projection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/app/history"
	appoutbox "activityhub/internal/app/outbox"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/infra/outbox"
	"activityhub/internal/infra/storage/memory"
)

type fakeInbox struct {
	seen      map[string]bool
	forgotten []string
}

func (f *fakeInbox) Seen(_ context.Context, id string) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	was := f.seen[id]
	f.seen[id] = true
	return was, nil
}

func (f *fakeInbox) Forget(_ context.Context, id string) error {
	delete(f.seen, id)
	f.forgotten = append(f.forgotten, id)
	return nil
}

func message(t *testing.T, rec appoutbox.EventRecord) *sarama.ConsumerMessage {
	t.Helper()
	payload, _, err := outbox.Encode(rec, "")
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: outbox.TopicFor("", rec.Name), Value: payload}
}

func confirmedRecord(t *testing.T) appoutbox.EventRecord {
	t.Helper()
	body, err := json.Marshal(map[string]any{"BookingID": "b1", "Quantity": 2})
	require.NoError(t, err)
	return appoutbox.EventRecord{
		ID:         "evt-1",
		Name:       "booking.confirmed",
		Payload:    body,
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Aggregate:  "b1",
	}
}

func TestHistoryHandlerProjectsOnce(t *testing.T) {
	store := memory.NewHistoryStore()
	inbox := &fakeInbox{}
	h := &HistoryHandler{Projector: &history.Projector{Store: store}, Inbox: inbox}
	msg := message(t, confirmedRecord(t))

	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	entries, err := store.ListByBooking(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, lifecycle.StatusConfirmed, entries[0].Status)
	assert.Equal(t, 2, entries[0].Quantity)
}

func TestHistoryHandlerSkipsUndecodable(t *testing.T) {
	h := &HistoryHandler{Projector: &history.Projector{Store: memory.NewHistoryStore()}}
	err := h.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("not json")})
	assert.NoError(t, err)
}

type failingProjector struct{}

func (failingProjector) Project(context.Context, appoutbox.EventRecord) error {
	return errors.New("history store down")
}

func TestHistoryHandlerForgetsOnFailure(t *testing.T) {
	inbox := &fakeInbox{}
	h := &HistoryHandler{Projector: failingProjector{}, Inbox: inbox}

	err := h.Handle(context.Background(), message(t, confirmedRecord(t)))
	require.Error(t, err)
	assert.Equal(t, []string{"evt-1"}, inbox.forgotten)
	assert.False(t, inbox.seen["evt-1"])
}

func TestHistoryTopics(t *testing.T) {
	assert.Equal(t, []string{"dev.booking.events.v1", "dev.ticket.events.v1"}, HistoryTopics("dev."))
}
