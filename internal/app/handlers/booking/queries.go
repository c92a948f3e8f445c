package booking

import (
	"context"

	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	"activityhub/internal/app/history"
	"activityhub/internal/app/queries"
	"activityhub/internal/app/uow"
	domainavailability "activityhub/internal/domain/availability"
	domainbooking "activityhub/internal/domain/booking"
)

const (
	getBookingKey     = "booking.get"
	listBookingsKey   = "booking.list"
	bookingHistoryKey = "booking.history"
)

type GetBookingQuery struct {
	BookingID string `validate:"required"`
}

func (q GetBookingQuery) Key() string { return getBookingKey }

type GetBookingHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.Booking, error) {
	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Booking{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(q.BookingID))
	if err != nil {
		return dto.Booking{}, err
	}
	ticket, err := support.Ticket(ctx, unit, b.ID)
	if err != nil {
		return dto.Booking{}, err
	}
	return dto.MapBooking(b, ticket), nil
}

type ListBookingsQuery struct {
	WindowID string `validate:"required"`
}

func (q ListBookingsQuery) Key() string { return listBookingsKey }

type ListBookingsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListBookingsHandler) Handle(ctx context.Context, q ListBookingsQuery) ([]dto.Booking, error) {
	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	windowID := domainavailability.WindowID(q.WindowID)
	if _, err := unit.Windows().ByID(ctx, windowID); err != nil {
		return nil, err
	}
	items, err := unit.Bookings().ListByWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.Booking, 0, len(items))
	for _, b := range items {
		out = append(out, dto.MapBooking(b, nil))
	}
	return out, nil
}

type BookingHistoryQuery struct {
	BookingID string `validate:"required"`
}

func (q BookingHistoryQuery) Key() string { return bookingHistoryKey }

type BookingHistoryHandler struct {
	UoWFactory uow.UoWFactory
	History    history.Store
}

func (h *BookingHistoryHandler) Handle(ctx context.Context, q BookingHistoryQuery) ([]dto.HistoryEntry, error) {
	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	if _, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(q.BookingID)); err != nil {
		return nil, err
	}
	entries, err := h.History.ListByBooking(ctx, q.BookingID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.HistoryEntry{
			BookingID:  e.BookingID,
			EventID:    e.EventID,
			Event:      e.Event,
			Status:     string(e.Status),
			Quantity:   e.Quantity,
			Reason:     e.Reason,
			OccurredAt: e.OccurredAt.Format(dto.LocalLayout + "Z07:00"),
		})
	}
	return out, nil
}

var _ queries.Handler[GetBookingQuery, dto.Booking] = (*GetBookingHandler)(nil)
var _ queries.Handler[ListBookingsQuery, []dto.Booking] = (*ListBookingsHandler)(nil)
var _ queries.Handler[BookingHistoryQuery, []dto.HistoryEntry] = (*BookingHistoryHandler)(nil)
