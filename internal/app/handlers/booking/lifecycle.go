package booking

import (
	"context"
	"log/slog"
	"time"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	"activityhub/internal/app/outbox"
	"activityhub/internal/app/uow"
	domainbooking "activityhub/internal/domain/booking"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
)

const (
	confirmBookingKey  = "booking.confirm"
	cancelBookingKey   = "booking.cancel"
	completeBookingKey = "booking.complete"
)

// versioned rejects the command when the caller saw an older booking.
func versioned(b *domainbooking.Booking, expected *int64) error {
	if expected == nil || *expected == b.Version {
		return nil
	}
	return apperr.Conflict("booking", "booking %s is at version %d, expected %d", b.ID, b.Version, *expected)
}

type ConfirmBookingCommand struct {
	BookingID       string `json:"booking_id" validate:"required"`
	ExpectedVersion *int64 `json:"expected_version"`
}

func (c ConfirmBookingCommand) Key() string { return confirmBookingKey }

type ConfirmBookingHandler struct {
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Lifecycle *lifecycle.Manager
	Clock     func() time.Time
}

func (h *ConfirmBookingHandler) Handle(ctx context.Context, cmd ConfirmBookingCommand) (*dto.Booking, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if err := versioned(b, cmd.ExpectedVersion); err != nil {
		return nil, err
	}
	ticket, err := confirm(ctx, unit, b, support.Now(h.Clock), support.Lifecycle(h.Lifecycle))
	if err != nil {
		return nil, err
	}
	touched := []outbox.Drainer{b}
	if ticket != nil {
		touched = append(touched, ticket)
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), touched...); err != nil {
		return nil, err
	}
	result := dto.MapBooking(b, ticket)
	return &result, nil
}

type CancelBookingCommand struct {
	BookingID       string `json:"booking_id" validate:"required"`
	Reason          string `json:"reason"`
	ExpectedVersion *int64 `json:"expected_version"`
	IdempotencyKeyV string `json:"-"`
}

func (c CancelBookingCommand) Key() string { return cancelBookingKey }

func (c CancelBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CancelBookingCommand) ResultPrototype() any { return &dto.Booking{} }

// CancelBookingHandler cancels the booking in the unit and releases its
// capacity once the unit commits. A failed release flags the window.
type CancelBookingHandler struct {
	Coordinator *capacity.Coordinator
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Lifecycle   *lifecycle.Manager
	Clock       func() time.Time
	Logger      *slog.Logger
}

func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*dto.Booking, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if err := versioned(b, cmd.ExpectedVersion); err != nil {
		return nil, err
	}
	touched, err := support.CancelBooking(ctx, unit, h.Coordinator, b, cmd.Reason, support.Now(h.Clock), support.Lifecycle(h.Lifecycle))
	if err != nil {
		return nil, err
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), touched...); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.InfoContext(ctx, "booking cancelled",
			slog.String("booking_id", string(b.ID)),
			slog.String("window_id", string(b.WindowID)),
			slog.Int("quantity", b.Quantity))
	}
	ticket, err := support.Ticket(ctx, unit, b.ID)
	if err != nil {
		return nil, err
	}
	result := dto.MapBooking(b, ticket)
	return &result, nil
}

type CompleteBookingCommand struct {
	BookingID       string `json:"booking_id" validate:"required"`
	ExpectedVersion *int64 `json:"expected_version"`
}

func (c CompleteBookingCommand) Key() string { return completeBookingKey }

// CompleteBookingHandler marks a confirmed booking as delivered. Rental units
// are checked back in; an active allotment ticket is redeemed.
type CompleteBookingHandler struct {
	Coordinator *capacity.Coordinator
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Lifecycle   *lifecycle.Manager
	Clock       func() time.Time
}

func (h *CompleteBookingHandler) Handle(ctx context.Context, cmd CompleteBookingCommand) (*dto.Booking, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	if err := versioned(b, cmd.ExpectedVersion); err != nil {
		return nil, err
	}
	touched, err := complete(ctx, unit, h.Coordinator, b, support.Now(h.Clock), support.Lifecycle(h.Lifecycle))
	if err != nil {
		return nil, err
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), touched...); err != nil {
		return nil, err
	}
	ticket, err := support.Ticket(ctx, unit, b.ID)
	if err != nil {
		return nil, err
	}
	result := dto.MapBooking(b, ticket)
	return &result, nil
}

func complete(ctx context.Context, unit uow.UnitOfWork, coord *capacity.Coordinator, b *domainbooking.Booking, now time.Time, fsm *lifecycle.Manager) ([]outbox.Drainer, error) {
	if err := b.Complete(now, fsm); err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}
	touched := []outbox.Drainer{b}
	ticket, err := support.ActiveTicket(ctx, unit, b.ID)
	if err != nil {
		return nil, err
	}
	if ticket != nil {
		if err := ticket.Redeem(now, fsm); err != nil {
			return nil, err
		}
		if err := unit.Tickets().Save(ctx, ticket); err != nil {
			return nil, err
		}
		touched = append(touched, ticket)
	}
	if b.ReleasesOnComplete() {
		support.ReleaseAfterCommit(unit, coord, b, "check-in")
	}
	return touched, nil
}

var _ commands.Handler[ConfirmBookingCommand, *dto.Booking] = (*ConfirmBookingHandler)(nil)
var _ commands.Handler[CancelBookingCommand, *dto.Booking] = (*CancelBookingHandler)(nil)
var _ commands.Handler[CompleteBookingCommand, *dto.Booking] = (*CompleteBookingHandler)(nil)
