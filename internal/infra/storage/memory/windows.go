package memory

import (
	"context"
	"time"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
)

var windowEntity = entity[*availability.Window]{
	what:    "window",
	version: func(w *availability.Window) int64 { return w.Version },
	bump:    func(w *availability.Window) { w.Version++ },
	clone:   (*availability.Window).Clone,
}

type windowRepo struct{ u *Unit }

func (r windowRepo) ByID(_ context.Context, id availability.WindowID) (*availability.Window, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	w, err := load(r.u, windowEntity, r.u.windows, r.u.store.windows, id)
	if err != nil {
		return nil, err
	}
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	r.liveCounter(w)
	return w, nil
}

// liveCounter copies the committed counter columns onto a staged copy.
// Callers hold the store read lock.
func (r windowRepo) liveCounter(w *availability.Window) {
	if stored, ok := r.u.store.windows[w.ID]; ok {
		w.Counter, w.Flagged, w.FlagReason = stored.Counter, stored.Flagged, stored.FlagReason
	}
}

func (r windowRepo) Save(_ context.Context, w *availability.Window) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	return save(r.u, windowEntity, r.u.windows, r.u.store.windows, w.ID, w, nil)
}

func (r windowRepo) list(keep func(*availability.Window) bool) ([]*availability.Window, error) {
	u := r.u
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.guard(false); err != nil {
		return nil, err
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	out := merged(u.store.windows, u.windows, windowEntity.clone, func(w *availability.Window) bool { return true })
	filtered := out[:0]
	for _, w := range out {
		r.liveCounter(w)
		if keep(w) {
			filtered = append(filtered, w)
		}
	}
	availability.SortWindows(filtered)
	return filtered, nil
}

func (r windowRepo) ListByResource(_ context.Context, resourceID catalog.ResourceID) ([]*availability.Window, error) {
	return r.list(func(w *availability.Window) bool { return w.ResourceID == resourceID })
}

func (r windowRepo) Query(_ context.Context, resourceIDs []catalog.ResourceID, dr daterange.DateRange) ([]*availability.Window, error) {
	wanted := make(map[catalog.ResourceID]struct{}, len(resourceIDs))
	for _, id := range resourceIDs {
		wanted[id] = struct{}{}
	}
	return r.list(func(w *availability.Window) bool {
		if _, ok := wanted[w.ResourceID]; !ok {
			return false
		}
		return w.Spec.Overlaps(dr)
	})
}

func (r windowRepo) ListFlagged(context.Context) ([]*availability.Window, error) {
	return r.list(func(w *availability.Window) bool { return w.Flagged })
}

func (r windowRepo) ListActive(context.Context) ([]*availability.Window, error) {
	return r.list(func(w *availability.Window) bool { return !w.Closed })
}

func (r windowRepo) NextSequence(context.Context) (int64, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowSeq++
	return s.windowSeq, nil
}

// CounterStore mutates committed window counters directly, outside any unit.
type CounterStore struct {
	Store *Store
}

func (c CounterStore) TryConsume(_ context.Context, id availability.WindowID, quantity int) (availability.Counter, error) {
	const op = "memory.counters.consume"
	s := c.Store
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return availability.Counter{}, apperr.NotFound(op, "window %s not found", id)
	}
	if !w.AcceptsBookings() {
		return w.Counter, apperr.AlreadyTerminal(op, "window %s does not accept bookings", id)
	}
	next, err := w.Counter.Consume(quantity)
	if err != nil {
		return w.Counter, err
	}
	w.Counter = next
	return next, nil
}

func (c CounterStore) Restore(_ context.Context, id availability.WindowID, quantity int) (availability.Counter, error) {
	s := c.Store
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return availability.Counter{}, apperr.NotFound("memory.counters.restore", "window %s not found", id)
	}
	w.Counter = w.Counter.Restore(quantity)
	return w.Counter, nil
}

func (c CounterStore) SetConsumed(_ context.Context, id availability.WindowID, consumed int) (availability.Counter, error) {
	const op = "memory.counters.set"
	if consumed < 0 {
		return availability.Counter{}, apperr.Validation(op, "consumed must be >= 0")
	}
	s := c.Store
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return availability.Counter{}, apperr.NotFound(op, "window %s not found", id)
	}
	w.Counter.Consumed = consumed
	w.Flagged, w.FlagReason = false, ""
	return w.Counter, nil
}

func (c CounterStore) Flag(_ context.Context, id availability.WindowID, reason string, at time.Time) error {
	s := c.Store
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return apperr.NotFound("memory.counters.flag", "window %s not found", id)
	}
	w.Flagged, w.FlagReason = true, reason
	w.UpdatedAt = at.UTC()
	return nil
}

func (c CounterStore) SetClosed(_ context.Context, id availability.WindowID, closed bool) error {
	s := c.Store
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return apperr.NotFound("memory.counters.close", "window %s not found", id)
	}
	w.Closed = closed
	return nil
}

var _ availability.CounterStore = CounterStore{}
