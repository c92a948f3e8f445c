package memory

import (
	"context"
	"sync"

	"activityhub/internal/app/history"
)

// HistoryStore is an append-only booking history kept in process.
type HistoryStore struct {
	mu      sync.RWMutex
	entries map[string][]history.Entry
	seen    map[string]struct{}
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{entries: make(map[string][]history.Entry), seen: make(map[string]struct{})}
}

func (s *HistoryStore) Append(_ context.Context, e history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[e.EventID]; dup {
		return nil
	}
	s.seen[e.EventID] = struct{}{}
	s.entries[e.BookingID] = append(s.entries[e.BookingID], e)
	return nil
}

func (s *HistoryStore) ListByBooking(_ context.Context, bookingID string) ([]history.Entry, error) {
	s.mu.RLock()
	out := append([]history.Entry(nil), s.entries[bookingID]...)
	s.mu.RUnlock()
	history.SortEntries(out)
	return out, nil
}

var _ history.Store = (*HistoryStore)(nil)
