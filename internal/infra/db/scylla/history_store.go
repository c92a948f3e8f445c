package scylla

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"

	"activityhub/internal/app/history"
	"activityhub/internal/domain/lifecycle"
)

type HistoryStore struct {
	session *gocql.Session
}

func NewHistoryStore(session *gocql.Session) *HistoryStore {
	return &HistoryStore{session: session}
}

const (
	insertEntry = `INSERT INTO booking_history (booking_id, occurred_at, event_id, event, status, quantity, reason) VALUES (?, ?, ?, ?, ?, ?, ?)`
	selectByID  = `SELECT booking_id, occurred_at, event_id, event, status, quantity, reason FROM booking_history WHERE booking_id = ?`
)

// Append upserts the entry; replaying the same event rewrites the same row.
func (s *HistoryStore) Append(ctx context.Context, e history.Entry) error {
	if s.session == nil {
		return errors.New("scylla session not initialized")
	}
	return s.session.Query(insertEntry, entryValues(e)...).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}

func (s *HistoryStore) ListByBooking(ctx context.Context, bookingID string) ([]history.Entry, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	iter := s.session.Query(selectByID, bookingID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	var (
		out []history.Entry
		row historyRow
	)
	for iter.Scan(&row.BookingID, &row.OccurredAt, &row.EventID, &row.Event, &row.Status, &row.Quantity, &row.Reason) {
		out = append(out, row.entry())
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	history.SortEntries(out)
	return out, nil
}

func (s *HistoryStore) Ping(ctx context.Context) error {
	if s.session == nil || s.session.Closed() {
		return errors.New("scylla session closed")
	}
	return s.session.Query("SELECT now() FROM system.local").WithContext(ctx).Exec()
}

type historyRow struct {
	BookingID  string
	OccurredAt time.Time
	EventID    string
	Event      string
	Status     string
	Quantity   int
	Reason     string
}

func (r historyRow) entry() history.Entry {
	return history.Entry{
		BookingID:  r.BookingID,
		EventID:    r.EventID,
		Event:      r.Event,
		Status:     lifecycle.Status(r.Status),
		Quantity:   r.Quantity,
		Reason:     r.Reason,
		OccurredAt: r.OccurredAt.UTC(),
	}
}

// entryValues binds e in insertEntry column order. Scylla stores
// milliseconds, so the timestamp is truncated to keep replays on one row.
func entryValues(e history.Entry) []any {
	return []any{
		e.BookingID,
		e.OccurredAt.UTC().Truncate(time.Millisecond),
		e.EventID,
		e.Event,
		string(e.Status),
		e.Quantity,
		e.Reason,
	}
}

var _ history.Store = (*HistoryStore)(nil)
