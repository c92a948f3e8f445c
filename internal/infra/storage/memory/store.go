// Package memory keeps every aggregate in process. Units of work stage their
// writes and apply them on commit after checking versions, so concurrent
// units behave like optimistic transactions.
package memory

import (
	"sync"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/booking"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/shared/apperr"
)

// Store is the shared committed state.
type Store struct {
	mu        sync.RWMutex
	vendors   map[catalog.VendorID]*catalog.Vendor
	resources map[catalog.ResourceID]*catalog.Resource
	windows   map[availability.WindowID]*availability.Window
	bookings  map[booking.BookingID]*booking.Booking
	tickets   map[booking.TicketID]*booking.Ticket

	resourceSeq int64
	windowSeq   int64
}

func NewStore() *Store {
	return &Store{
		vendors:   make(map[catalog.VendorID]*catalog.Vendor),
		resources: make(map[catalog.ResourceID]*catalog.Resource),
		windows:   make(map[availability.WindowID]*availability.Window),
		bookings:  make(map[booking.BookingID]*booking.Booking),
		tickets:   make(map[booking.TicketID]*booking.Ticket),
	}
}

// absent marks a staged insert.
const absent int64 = -1

// stage holds the writes of one unit for one aggregate type.
type stage[K comparable, V any] struct {
	items    map[K]V
	expected map[K]int64
	order    []K
}

func newStage[K comparable, V any]() *stage[K, V] {
	return &stage[K, V]{items: make(map[K]V), expected: make(map[K]int64)}
}

func (s *stage[K, V]) get(k K) (V, bool) {
	v, ok := s.items[k]
	return v, ok
}

// put stages v. expected is the committed version seen when k was first staged.
func (s *stage[K, V]) put(k K, v V, expected int64) {
	if _, ok := s.expected[k]; !ok {
		s.expected[k] = expected
		s.order = append(s.order, k)
	}
	s.items[k] = v
}

// verify fails when another unit committed k after it was staged here.
func verify[K comparable, V any](st *stage[K, V], stored map[K]V, version func(V) int64) (K, bool) {
	for _, k := range st.order {
		cur, ok := stored[k]
		exp := st.expected[k]
		if exp == absent {
			if ok {
				return k, false
			}
			continue
		}
		if !ok || version(cur) != exp {
			return k, false
		}
	}
	var zero K
	return zero, true
}

func apply[K comparable, V any](st *stage[K, V], stored map[K]V, merge func(old, next V) V) {
	for _, k := range st.order {
		next := st.items[k]
		if old, ok := stored[k]; ok && merge != nil {
			next = merge(old, next)
		}
		stored[k] = next
	}
}

// merged lists committed items overlaid with staged ones, filtered by keep.
func merged[K comparable, V any](stored map[K]V, st *stage[K, V], clone func(V) V, keep func(V) bool) []V {
	var out []V
	for k, v := range stored {
		if staged, ok := st.get(k); ok {
			v = staged
		}
		if keep(v) {
			out = append(out, clone(v))
		}
	}
	for _, k := range st.order {
		if _, ok := stored[k]; ok {
			continue
		}
		if v := st.items[k]; keep(v) {
			out = append(out, clone(v))
		}
	}
	return out
}

// entity describes how the generic helpers read and copy an aggregate.
type entity[V any] struct {
	what    string
	version func(V) int64
	bump    func(V)
	clone   func(V) V
}

// load returns the unit's view of k: the staged copy, else the committed one.
func load[K comparable, V any](u *Unit, e entity[V], st *stage[K, V], stored map[K]V, k K) (V, error) {
	var zero V
	if err := u.guard(false); err != nil {
		return zero, err
	}
	if v, ok := st.get(k); ok {
		return e.clone(v), nil
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	v, ok := stored[k]
	if !ok {
		return zero, apperr.NotFound("memory."+e.what, "%s %v not found", e.what, k)
	}
	return e.clone(v), nil
}

// save stages v after checking its version against the unit's view. check
// may refuse the write based on the current record.
func save[K comparable, V any](u *Unit, e entity[V], st *stage[K, V], stored map[K]V, k K, v V, check func(current V) error) error {
	if err := u.guard(true); err != nil {
		return err
	}
	u.store.mu.RLock()
	committed, inStore := stored[k]
	u.store.mu.RUnlock()
	current, exists := st.get(k)
	if !exists && inStore {
		current, exists = committed, true
	}
	var version int64
	if exists {
		version = e.version(current)
		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}
	}
	if err := checkVersion("memory."+e.what, e.what, k, version, exists, e.version(v)); err != nil {
		return err
	}
	base := absent
	if inStore {
		base = e.version(committed)
	}
	e.bump(v)
	st.put(k, e.clone(v), base)
	return nil
}
