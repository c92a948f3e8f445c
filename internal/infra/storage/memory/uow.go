package memory

import (
	"context"
	"errors"
	"sync"

	"activityhub/internal/app/uow"
	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/booking"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/shared/apperr"
)

var (
	ErrUnitFinished = errors.New("memory: unit of work already finished")
	ErrReadOnly     = errors.New("memory: read-only unit of work")
)

// Factory opens units over a shared Store.
type Factory struct {
	Store *Store
}

func (f Factory) Begin(_ context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Store == nil {
		return nil, errors.New("memory: unit of work factory missing store")
	}
	return &Unit{
		store:     f.Store,
		readOnly:  opts.ReadOnly,
		vendors:   newStage[catalog.VendorID, *catalog.Vendor](),
		resources: newStage[catalog.ResourceID, *catalog.Resource](),
		windows:   newStage[availability.WindowID, *availability.Window](),
		bookings:  newStage[booking.BookingID, *booking.Booking](),
		tickets:   newStage[booking.TicketID, *booking.Ticket](),
	}, nil
}

type Unit struct {
	uow.Hooks

	store    *Store
	readOnly bool

	mu        sync.Mutex
	finished  bool
	vendors   *stage[catalog.VendorID, *catalog.Vendor]
	resources *stage[catalog.ResourceID, *catalog.Resource]
	windows   *stage[availability.WindowID, *availability.Window]
	bookings  *stage[booking.BookingID, *booking.Booking]
	tickets   *stage[booking.TicketID, *booking.Ticket]
}

func (u *Unit) Vendors() catalog.VendorRepository { return vendorRepo{u} }
func (u *Unit) Resources() catalog.Repository     { return resourceRepo{u} }
func (u *Unit) Windows() availability.Repository  { return windowRepo{u} }
func (u *Unit) Bookings() booking.Repository      { return bookingRepo{u} }
func (u *Unit) Tickets() booking.TicketRepository { return ticketRepo{u} }

// Commit applies the staged writes atomically or fails with Conflict when a
// concurrent unit committed one of the same aggregates first.
func (u *Unit) Commit(ctx context.Context) error {
	u.mu.Lock()
	if u.finished {
		u.mu.Unlock()
		return ErrUnitFinished
	}
	s := u.store
	s.mu.Lock()
	if err := u.verify(); err != nil {
		s.mu.Unlock()
		u.mu.Unlock()
		return err
	}
	apply(u.vendors, s.vendors, nil)
	apply(u.resources, s.resources, nil)
	apply(u.windows, s.windows, keepCounter)
	apply(u.bookings, s.bookings, nil)
	apply(u.tickets, s.tickets, nil)
	s.mu.Unlock()
	u.finished = true
	u.mu.Unlock()

	u.RunCommit(ctx)
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.mu.Lock()
	if u.finished {
		u.mu.Unlock()
		return nil
	}
	u.finished = true
	u.mu.Unlock()
	u.RunRollback(ctx)
	return nil
}

func (u *Unit) verify() error {
	const op = "memory.commit"
	s := u.store
	if k, ok := verify(u.vendors, s.vendors, func(v *catalog.Vendor) int64 { return v.Version }); !ok {
		return conflict(op, "vendor", k)
	}
	if k, ok := verify(u.resources, s.resources, func(r *catalog.Resource) int64 { return r.Version }); !ok {
		return conflict(op, "resource", k)
	}
	if k, ok := verify(u.windows, s.windows, func(w *availability.Window) int64 { return w.Version }); !ok {
		return conflict(op, "window", k)
	}
	if k, ok := verify(u.bookings, s.bookings, func(b *booking.Booking) int64 { return b.Version }); !ok {
		return conflict(op, "booking", k)
	}
	if k, ok := verify(u.tickets, s.tickets, func(t *booking.Ticket) int64 { return t.Version }); !ok {
		return conflict(op, "ticket", k)
	}
	return nil
}

func conflict(op, what string, key any) error {
	return apperr.Conflict(op, "%s %v was modified concurrently", what, key)
}

// keepCounter preserves the counter columns owned by the CounterStore.
func keepCounter(old, next *availability.Window) *availability.Window {
	next.Counter = old.Counter
	next.Flagged = old.Flagged
	next.FlagReason = old.FlagReason
	return next
}

// guard is called by repositories before touching the unit.
func (u *Unit) guard(write bool) error {
	if u.finished {
		return ErrUnitFinished
	}
	if write && u.readOnly {
		return ErrReadOnly
	}
	return nil
}

// checkVersion validates an incoming write against the version the unit sees.
func checkVersion(op, what string, id any, current int64, exists bool, incoming int64) error {
	if !exists {
		if incoming != 0 {
			return apperr.NotFound(op, "%s %v not found", what, id)
		}
		return nil
	}
	if current != incoming {
		return apperr.Conflict(op, "%s %v is at version %d, got %d", what, id, current, incoming)
	}
	return nil
}

var _ uow.UnitOfWork = (*Unit)(nil)
var _ uow.UoWFactory = Factory{}
