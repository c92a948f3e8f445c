package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	"activityhub/internal/app/outbox"
	domainbooking "activityhub/internal/domain/booking"
	"activityhub/internal/domain/lifecycle"
)

const (
	redeemTicketKey = "booking.tickets.redeem"
	revokeTicketKey = "booking.tickets.revoke"
)

type RedeemTicketCommand struct {
	TicketID string `json:"ticket_id" validate:"required"`
}

func (c RedeemTicketCommand) Key() string { return redeemTicketKey }

// RedeemTicketHandler redeems the ticket at the gate and completes its booking.
type RedeemTicketHandler struct {
	Coordinator *capacity.Coordinator
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Lifecycle   *lifecycle.Manager
	Clock       func() time.Time
}

func (h *RedeemTicketHandler) Handle(ctx context.Context, cmd RedeemTicketCommand) (*dto.Booking, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	ticket, err := unit.Tickets().ByID(ctx, domainbooking.TicketID(cmd.TicketID))
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, ticket.BookingID)
	if err != nil {
		return nil, err
	}
	now, fsm := support.Now(h.Clock), support.Lifecycle(h.Lifecycle)
	if err := ticket.Redeem(now, fsm); err != nil {
		return nil, err
	}
	if err := unit.Tickets().Save(ctx, ticket); err != nil {
		return nil, err
	}
	touched := []outbox.Drainer{ticket}
	if b.Status == lifecycle.StatusConfirmed {
		completed, err := complete(ctx, unit, h.Coordinator, b, now, fsm)
		if err != nil {
			return nil, err
		}
		touched = append(touched, completed...)
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), touched...); err != nil {
		return nil, err
	}
	result := dto.MapBooking(b, ticket)
	return &result, nil
}

type RevokeTicketCommand struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}

func (c RevokeTicketCommand) Key() string { return revokeTicketKey }

// RevokeTicketHandler invalidates the ticket and cancels its booking, which
// returns the units to the allotment.
type RevokeTicketHandler struct {
	Coordinator *capacity.Coordinator
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Lifecycle   *lifecycle.Manager
	Clock       func() time.Time
}

func (h *RevokeTicketHandler) Handle(ctx context.Context, cmd RevokeTicketCommand) (*dto.Booking, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	ticket, err := unit.Tickets().ByID(ctx, domainbooking.TicketID(cmd.TicketID))
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, ticket.BookingID)
	if err != nil {
		return nil, err
	}
	now, fsm := support.Now(h.Clock), support.Lifecycle(h.Lifecycle)
	reason := strings.TrimSpace(cmd.Reason)
	if err := ticket.Revoke(reason, now, fsm); err != nil {
		return nil, err
	}
	if err := unit.Tickets().Save(ctx, ticket); err != nil {
		return nil, err
	}
	touched := []outbox.Drainer{ticket}
	if b.HoldsCapacity() {
		cancelled, err := support.CancelBooking(ctx, unit, h.Coordinator, b, fmt.Sprintf("ticket revoked: %s", reason), now, fsm)
		if err != nil {
			return nil, err
		}
		touched = append(touched, cancelled...)
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), touched...); err != nil {
		return nil, err
	}
	result := dto.MapBooking(b, ticket)
	return &result, nil
}

var _ commands.Handler[RedeemTicketCommand, *dto.Booking] = (*RedeemTicketHandler)(nil)
var _ commands.Handler[RevokeTicketCommand, *dto.Booking] = (*RevokeTicketHandler)(nil)
