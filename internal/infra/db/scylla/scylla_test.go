package scylla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"activityhub/internal/app/history"
	"activityhub/internal/domain/lifecycle"
)

func TestEntryRoundTripThroughRow(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)
	e := history.Entry{
		BookingID: "b1", EventID: "e1", Event: "booking.cancelled",
		Status: lifecycle.StatusCancelled, Quantity: 2, Reason: "weather", OccurredAt: at,
	}
	vals := entryValues(e)
	assert.Len(t, vals, 7)
	assert.Equal(t, at.Truncate(time.Millisecond), vals[1])

	row := historyRow{
		BookingID: vals[0].(string), OccurredAt: vals[1].(time.Time), EventID: vals[2].(string),
		Event: vals[3].(string), Status: vals[4].(string), Quantity: vals[5].(int), Reason: vals[6].(string),
	}
	got := row.entry()
	assert.Equal(t, lifecycle.StatusCancelled, got.Status)
	assert.Equal(t, "weather", got.Reason)
	assert.Equal(t, at.Truncate(time.Millisecond), got.OccurredAt)
}

func TestSchemaStatements(t *testing.T) {
	assert.Contains(t, keyspaceCQL("hub", 0), "'replication_factor': 1")
	assert.Contains(t, historyTableCQL("hub"), "hub.booking_history")
	assert.Contains(t, historyTableCQL("hub"), "PRIMARY KEY (booking_id, occurred_at, event_id)")
	assert.True(t, keyspacePattern.MatchString("activity_hub"))
	assert.False(t, keyspacePattern.MatchString("hub; DROP"))
}
