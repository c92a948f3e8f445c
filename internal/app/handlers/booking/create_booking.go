package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	"activityhub/internal/app/middleware"
	"activityhub/internal/app/outbox"
	"activityhub/internal/app/uow"
	domainavailability "activityhub/internal/domain/availability"
	domainbooking "activityhub/internal/domain/booking"
	domaincatalog "activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
)

const (
	createBookingKey     = "booking.create"
	commitReservationKey = "booking.commit_reservation"
)

var errRolledBack = errors.New("booking: unit of work rolled back")

type CreateBookingCommand struct {
	BookingID string `json:"id"`
	WindowID  string `json:"window_id" validate:"required"`
	// Quantity may be left zero when Token is set.
	Quantity        int       `json:"quantity" validate:"gte=0"`
	RequestedStatus string    `json:"status"`
	CustomerRef     string    `json:"customer_ref"`
	StaffRef        string    `json:"staff_ref"`
	ServiceDay      time.Time `json:"service_day"`
	// Token commits an existing hold instead of reserving new units.
	Token           string `json:"token"`
	IdempotencyKeyV string `json:"-"`
}

func (c CreateBookingCommand) Key() string { return createBookingKey }

func (c CreateBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateBookingCommand) ResultPrototype() any { return &dto.Booking{} }

// CreateBookingHandler reserves capacity, records the booking and commits the
// reservation. Requested CONFIRMED bookings are promoted after the commit.
// When the unit rolls back the reservation is aborted.
type CreateBookingHandler struct {
	Coordinator *capacity.Coordinator
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Lifecycle   *lifecycle.Manager
	Clock       func() time.Time
	Logger      *slog.Logger
}

func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*dto.Booking, error) {
	const op = "booking.create"
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	requested, err := requestedStatus(cmd.RequestedStatus)
	if err != nil {
		return nil, err
	}
	window, err := unit.Windows().ByID(ctx, domainavailability.WindowID(cmd.WindowID))
	if err != nil {
		return nil, err
	}
	if !window.AcceptsBookings() {
		return nil, apperr.AlreadyTerminal(op, "window %s does not accept bookings", window.ID)
	}
	now := support.Now(h.Clock)
	day, err := serviceDay(window, cmd.ServiceDay, now)
	if err != nil {
		return nil, err
	}

	var token capacity.Token
	if cmd.Token != "" {
		token, err = h.Coordinator.Token(cmd.Token)
		if err != nil {
			return nil, err
		}
		if token.WindowID != window.ID {
			return nil, apperr.Validation(op, "reservation %s belongs to window %s", token.ID, token.WindowID)
		}
		if cmd.Quantity != 0 && cmd.Quantity != token.Quantity {
			return nil, apperr.Validation(op, "quantity %d does not match reservation quantity %d", cmd.Quantity, token.Quantity)
		}
		if token.State != capacity.TokenHeld {
			return nil, apperr.Conflict(op, "reservation %s is %s", token.ID, token.State)
		}
	} else {
		token, err = h.Coordinator.Reserve(ctx, window.ID, cmd.Quantity)
		if err != nil {
			return nil, err
		}
		h.abortOnRollback(unit, token.ID)
	}

	id := strings.TrimSpace(cmd.BookingID)
	if id == "" {
		id = uuid.NewString()
	}
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:              domainbooking.BookingID(id),
		Window:          window,
		Quantity:        token.Quantity,
		RequestedStatus: requested,
		CustomerRef:     cmd.CustomerRef,
		StaffRef:        cmd.StaffRef,
		TokenID:         token.ID,
		ServiceDay:      day,
		Now:             now,
	})
	if err != nil {
		return nil, h.fail(ctx, cmd.Token == "", token.ID, err)
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, h.fail(ctx, cmd.Token == "", token.ID, err)
	}
	if _, err := h.Coordinator.Commit(ctx, token.ID); err != nil {
		return nil, h.fail(ctx, cmd.Token == "", token.ID, err)
	}
	if cmd.Token != "" {
		h.abortOnRollback(unit, token.ID)
	}

	touched := []outbox.Drainer{b}
	var ticket *domainbooking.Ticket
	if requested == lifecycle.StatusConfirmed {
		if ticket, err = confirm(ctx, unit, b, now, support.Lifecycle(h.Lifecycle)); err != nil {
			return nil, err
		}
		if ticket != nil {
			touched = append(touched, ticket)
		}
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), touched...); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.InfoContext(ctx, "booking recorded",
			slog.String("booking_id", string(b.ID)),
			slog.String("window_id", string(b.WindowID)),
			slog.Int("quantity", b.Quantity),
			slog.String("status", string(b.Status)),
			slog.Int("remaining", token.Remaining))
	}
	result := dto.MapBooking(b, ticket)
	return &result, nil
}

// abortOnRollback gives the reserved units back when the unit is rolled back.
func (h *CreateBookingHandler) abortOnRollback(unit uow.UnitOfWork, tokenID string) {
	unit.AfterRollback(func(ctx context.Context) {
		if err := h.Coordinator.Abort(ctx, tokenID, errRolledBack); err != nil && !errors.Is(err, errRolledBack) && h.Logger != nil {
			h.Logger.ErrorContext(ctx, "reservation abort failed", slog.String("token", tokenID), slog.Any("err", err))
		}
	})
}

// fail surfaces a ledger failure. Fresh reservations are aborted right away so
// a compensation failure is reported with the original error. Holds passed in
// by the caller stay held.
func (h *CreateBookingHandler) fail(ctx context.Context, owned bool, tokenID string, cause error) error {
	if !owned {
		return cause
	}
	return h.Coordinator.Abort(ctx, tokenID, cause)
}

func requestedStatus(raw string) (lifecycle.Status, error) {
	status := lifecycle.Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case "":
		return lifecycle.StatusConfirmed, nil
	case lifecycle.StatusPending, lifecycle.StatusConfirmed:
		return status, nil
	default:
		return "", apperr.Validation("booking.create", "bookings cannot be created as %s", status)
	}
}

// serviceDay picks the day the booking consumes capacity on. Slots use their
// start date. Pools and allotments use the requested day or today, clamped
// to the window's first day.
func serviceDay(w *domainavailability.Window, requested, now time.Time) (time.Time, error) {
	first := daterange.Day(w.Spec.StartsAt())
	if w.Kind() == domaincatalog.KindSlot {
		return first, nil
	}
	if !requested.IsZero() {
		day := daterange.Day(daterange.Naive(requested))
		if !w.Spec.OccursOn(day) {
			return time.Time{}, apperr.Validation("booking.create", "window %s is not valid on %s", w.ID, daterange.DayKey(day))
		}
		return day, nil
	}
	today := daterange.Day(now)
	if today.Before(first) {
		return first, nil
	}
	if w.Spec.OccursOn(today) {
		return today, nil
	}
	return first, nil
}

// confirm promotes b and issues the allotment ticket.
func confirm(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, now time.Time, fsm *lifecycle.Manager) (*domainbooking.Ticket, error) {
	if err := b.Confirm(now, fsm); err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}
	if b.Kind != domaincatalog.KindAllotment {
		return nil, nil
	}
	ticket, err := domainbooking.IssueTicket(domainbooking.TicketID(uuid.NewString()), b, now)
	if err != nil {
		return nil, err
	}
	if err := unit.Tickets().Save(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// CommitReservationCommand records a booking from a held reservation token.
type CommitReservationCommand struct {
	Token           string    `json:"token" validate:"required"`
	BookingID       string    `json:"id"`
	RequestedStatus string    `json:"status"`
	CustomerRef     string    `json:"customer_ref"`
	StaffRef        string    `json:"staff_ref"`
	ServiceDay      time.Time `json:"service_day"`
	IdempotencyKeyV string    `json:"-"`
}

func (c CommitReservationCommand) Key() string { return commitReservationKey }

func (c CommitReservationCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CommitReservationCommand) ResultPrototype() any { return &dto.Booking{} }

type CommitReservationHandler struct {
	Create *CreateBookingHandler
}

func (h *CommitReservationHandler) Handle(ctx context.Context, cmd CommitReservationCommand) (*dto.Booking, error) {
	token, err := h.Create.Coordinator.Token(cmd.Token)
	if err != nil {
		return nil, err
	}
	return h.Create.Handle(ctx, CreateBookingCommand{
		BookingID:       cmd.BookingID,
		WindowID:        string(token.WindowID),
		Quantity:        token.Quantity,
		RequestedStatus: cmd.RequestedStatus,
		CustomerRef:     cmd.CustomerRef,
		StaffRef:        cmd.StaffRef,
		ServiceDay:      cmd.ServiceDay,
		Token:           token.ID,
	})
}

var _ commands.Handler[CreateBookingCommand, *dto.Booking] = (*CreateBookingHandler)(nil)
var _ commands.Handler[CommitReservationCommand, *dto.Booking] = (*CommitReservationHandler)(nil)
var _ middleware.IdempotentCommand = CreateBookingCommand{}
var _ middleware.IdempotentCommand = CommitReservationCommand{}
