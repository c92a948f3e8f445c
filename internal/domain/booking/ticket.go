package booking

import (
	"context"
	"time"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/events"
)

type TicketID string

// Ticket is issued for a confirmed allotment booking and redeemed at the gate.
type Ticket struct {
	ID        TicketID
	BookingID BookingID
	WindowID  availability.WindowID
	Quantity  int
	Status    lifecycle.Status
	Reason    string
	IssuedAt  time.Time
	UpdatedAt time.Time
	Version   int64
	events.EventRecorder
}

type TicketRepository interface {
	ByID(ctx context.Context, id TicketID) (*Ticket, error)
	ByBooking(ctx context.Context, bookingID BookingID) (*Ticket, error)
	Save(ctx context.Context, ticket *Ticket) error
}

func IssueTicket(id TicketID, b *Booking, now time.Time) (*Ticket, error) {
	if b == nil || b.Status != lifecycle.StatusConfirmed {
		return nil, apperr.Validation("booking.issue_ticket", "tickets are issued for confirmed bookings only")
	}
	t := &Ticket{
		ID:        id,
		BookingID: b.ID,
		WindowID:  b.WindowID,
		Quantity:  b.Quantity,
		Status:    lifecycle.StatusActive,
		IssuedAt:  now.UTC(),
		UpdatedAt: now.UTC(),
	}
	t.Record(TicketIssued{TicketID: t.ID, BookingID: t.BookingID, Quantity: t.Quantity, At: t.IssuedAt})
	return t, nil
}

func (t *Ticket) Redeem(now time.Time, fsm *lifecycle.Manager) error {
	return t.move("ticket.redeem", lifecycle.StatusRedeemed, "", now, fsm)
}

func (t *Ticket) Revoke(reason string, now time.Time, fsm *lifecycle.Manager) error {
	return t.move("ticket.revoke", lifecycle.StatusRevoked, reason, now, fsm)
}

func (t *Ticket) Cancel(reason string, now time.Time, fsm *lifecycle.Manager) error {
	return t.move("ticket.cancel", lifecycle.StatusCancelled, reason, now, fsm)
}

func (t *Ticket) IsActive() bool { return t.Status == lifecycle.StatusActive }

func (t *Ticket) move(op string, to lifecycle.Status, reason string, now time.Time, fsm *lifecycle.Manager) error {
	if fsm.IsTerminal(lifecycle.EntityTicket, t.Status) {
		return apperr.AlreadyTerminal(op, "ticket %s is %s", t.ID, t.Status)
	}
	if err := fsm.Transition(string(t.ID), lifecycle.EntityTicket, t.Status, to, lifecycle.Payload{Reason: reason}); err != nil {
		return err
	}
	from := t.Status
	t.Status = to
	t.Reason = reason
	t.UpdatedAt = now.UTC()
	t.Record(TicketStatusChanged{TicketID: t.ID, BookingID: t.BookingID, From: from, To: to, Reason: reason, At: t.UpdatedAt})
	return nil
}

func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.EventRecorder = events.EventRecorder{}
	return &cp
}
