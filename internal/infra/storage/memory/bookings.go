package memory

import (
	"context"
	"sort"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/booking"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
)

var (
	bookingEntity = entity[*booking.Booking]{
		what:    "booking",
		version: func(b *booking.Booking) int64 { return b.Version },
		bump:    func(b *booking.Booking) { b.Version++ },
		clone:   (*booking.Booking).Clone,
	}
	ticketEntity = entity[*booking.Ticket]{
		what:    "ticket",
		version: func(t *booking.Ticket) int64 { return t.Version },
		bump:    func(t *booking.Ticket) { t.Version++ },
		clone:   (*booking.Ticket).Clone,
	}
)

type bookingRepo struct{ u *Unit }

func (r bookingRepo) ByID(_ context.Context, id booking.BookingID) (*booking.Booking, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	return load(r.u, bookingEntity, r.u.bookings, r.u.store.bookings, id)
}

// Save refuses to overwrite a booking that is already terminal.
func (r bookingRepo) Save(_ context.Context, b *booking.Booking) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	return save(r.u, bookingEntity, r.u.bookings, r.u.store.bookings, b.ID, b, func(current *booking.Booking) error {
		if current.IsTerminal() {
			return apperr.AlreadyTerminal("memory.bookings", "booking %s is %s", current.ID, current.Status)
		}
		return nil
	})
}

func (r bookingRepo) list(keep func(*booking.Booking) bool) ([]*booking.Booking, error) {
	u := r.u
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.guard(false); err != nil {
		return nil, err
	}
	u.store.mu.RLock()
	out := merged(u.store.bookings, u.bookings, bookingEntity.clone, keep)
	u.store.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r bookingRepo) ListByWindow(_ context.Context, windowID availability.WindowID) ([]*booking.Booking, error) {
	return r.list(func(b *booking.Booking) bool { return b.WindowID == windowID })
}

func (r bookingRepo) ListByResource(_ context.Context, resourceID catalog.ResourceID) ([]*booking.Booking, error) {
	return r.list(func(b *booking.Booking) bool { return b.ResourceID == resourceID })
}

func (r bookingRepo) ListByStatus(_ context.Context, status lifecycle.Status) ([]*booking.Booking, error) {
	return r.list(func(b *booking.Booking) bool { return b.Status == status })
}

type ticketRepo struct{ u *Unit }

func (r ticketRepo) ByID(_ context.Context, id booking.TicketID) (*booking.Ticket, error) {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	return load(r.u, ticketEntity, r.u.tickets, r.u.store.tickets, id)
}

func (r ticketRepo) ByBooking(_ context.Context, bookingID booking.BookingID) (*booking.Ticket, error) {
	u := r.u
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.guard(false); err != nil {
		return nil, err
	}
	u.store.mu.RLock()
	found := merged(u.store.tickets, u.tickets, ticketEntity.clone, func(t *booking.Ticket) bool { return t.BookingID == bookingID })
	u.store.mu.RUnlock()
	if len(found) == 0 {
		return nil, apperr.NotFound("memory.tickets", "no ticket for booking %s", bookingID)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].IssuedAt.After(found[j].IssuedAt) })
	return found[0], nil
}

func (r ticketRepo) Save(_ context.Context, t *booking.Ticket) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	return save(r.u, ticketEntity, r.u.tickets, r.u.store.tickets, t.ID, t, nil)
}
