package support

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/outbox"
	"activityhub/internal/app/uow"
	domainbooking "activityhub/internal/domain/booking"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
)

// CancelBooking cancels b, cancels its active ticket and schedules the
// capacity release for after the commit. It returns the touched aggregates so
// the caller records their events.
func CancelBooking(ctx context.Context, unit uow.UnitOfWork, coord *capacity.Coordinator, b *domainbooking.Booking, reason string, now time.Time, fsm *lifecycle.Manager) ([]outbox.Drainer, error) {
	if err := b.Cancel(reason, now, fsm); err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}
	touched := []outbox.Drainer{b}
	ticket, err := ActiveTicket(ctx, unit, b.ID)
	if err != nil {
		return nil, err
	}
	if ticket != nil {
		if err := ticket.Cancel(reason, now, fsm); err != nil {
			return nil, err
		}
		if err := unit.Tickets().Save(ctx, ticket); err != nil {
			return nil, err
		}
		touched = append(touched, ticket)
	}
	ReleaseAfterCommit(unit, coord, b, "cancellation")
	return touched, nil
}

// ReleaseAfterCommit gives the booking's units back once the unit commits.
func ReleaseAfterCommit(unit uow.UnitOfWork, coord *capacity.Coordinator, b *domainbooking.Booking, why string) {
	if coord == nil {
		return
	}
	windowID, bookingID, quantity := b.WindowID, b.ID, b.Quantity
	unit.AfterCommit(func(ctx context.Context) {
		if err := coord.ReleaseOrFlag(ctx, windowID, quantity, why); err != nil {
			coord.Logger().ErrorContext(ctx, "window drift left unflagged",
				slog.String("window_id", string(windowID)),
				slog.String("booking_id", string(bookingID)),
				slog.Int("quantity", quantity),
				slog.String("why", why),
				slog.Any("err", err))
		}
	})
}

// ActiveTicket returns the booking's ticket when it is still ACTIVE.
func ActiveTicket(ctx context.Context, unit uow.UnitOfWork, id domainbooking.BookingID) (*domainbooking.Ticket, error) {
	ticket, err := Ticket(ctx, unit, id)
	if err != nil || ticket == nil || !ticket.IsActive() {
		return nil, err
	}
	return ticket, nil
}

// Ticket returns the booking's ticket or nil when none was issued.
func Ticket(ctx context.Context, unit uow.UnitOfWork, id domainbooking.BookingID) (*domainbooking.Ticket, error) {
	ticket, err := unit.Tickets().ByBooking(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return ticket, err
}
