// Package history projects booking and ticket events into an append-only
// per-booking status log.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"activityhub/internal/app/outbox"
	"activityhub/internal/domain/lifecycle"
)

// Entry is one status change of a booking.
type Entry struct {
	BookingID  string
	EventID    string
	Event      string
	Status     lifecycle.Status
	Quantity   int
	Reason     string
	OccurredAt time.Time
}

// Store persists entries. Append must ignore an entry whose EventID is already
// stored so redelivered events are harmless.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByBooking(ctx context.Context, bookingID string) ([]Entry, error)
}

var ErrMalformedEvent = errors.New("history: malformed event payload")

// Projector turns outbox records into history entries.
type Projector struct {
	Store  Store
	Logger *slog.Logger
}

type payload struct {
	BookingID string
	Quantity  int
	Reason    string
	To        lifecycle.Status
	At        time.Time
}

var statusByEvent = map[string]lifecycle.Status{
	"booking.requested": lifecycle.StatusPending,
	"booking.confirmed": lifecycle.StatusConfirmed,
	"booking.cancelled": lifecycle.StatusCancelled,
	"booking.completed": lifecycle.StatusCompleted,
	"ticket.issued":     lifecycle.StatusActive,
}

// eventRank orders entries recorded by the same command at the same instant.
var eventRank = map[string]int{
	"booking.requested":     0,
	"booking.confirmed":     1,
	"ticket.issued":         2,
	"booking.completed":     3,
	"booking.cancelled":     3,
	"ticket.status_changed": 4,
}

// SortEntries orders entries by occurrence, breaking ties by event kind.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return eventRank[a.Event] < eventRank[b.Event]
	})
}

// Handles reports whether the projector consumes records named name.
func Handles(name string) bool {
	if _, ok := statusByEvent[name]; ok {
		return true
	}
	return name == "ticket.status_changed"
}

// Project appends the entry for rec. Records of other event types are skipped.
func (p *Projector) Project(ctx context.Context, rec outbox.EventRecord) error {
	if !Handles(rec.Name) {
		return nil
	}
	var body payload
	if err := json.Unmarshal(rec.Payload, &body); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}
	if body.BookingID == "" {
		return ErrMalformedEvent
	}
	status, ok := statusByEvent[rec.Name]
	if !ok {
		status = body.To
	}
	occurred := rec.OccurredAt
	if occurred.IsZero() {
		occurred = body.At
	}
	entry := Entry{
		BookingID:  body.BookingID,
		EventID:    rec.ID,
		Event:      rec.Name,
		Status:     status,
		Quantity:   body.Quantity,
		Reason:     strings.TrimSpace(body.Reason),
		OccurredAt: occurred.UTC(),
	}
	if err := p.Store.Append(ctx, entry); err != nil {
		return err
	}
	if p.Logger != nil {
		p.Logger.DebugContext(ctx, "booking history appended",
			slog.String("booking_id", entry.BookingID),
			slog.String("event", entry.Event))
	}
	return nil
}
