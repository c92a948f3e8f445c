package booking

import (
	"context"
	"strings"
	"time"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
	"activityhub/internal/domain/shared/events"
)

type BookingID string

type Booking struct {
	ID           BookingID
	WindowID     availability.WindowID
	ResourceID   catalog.ResourceID
	Kind         catalog.Kind
	Quantity     int
	Status       lifecycle.Status
	CustomerRef  string
	StaffRef     string
	TokenID      string
	CancelReason string
	// ServiceDay is the naive day the booking consumes capacity on.
	ServiceDay time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int64
	events.EventRecorder
}

// Repository stores bookings. Save must reject writes over a terminal stored record
// and enforce optimistic versioning.
type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Save(ctx context.Context, booking *Booking) error
	ListByWindow(ctx context.Context, windowID availability.WindowID) ([]*Booking, error)
	ListByResource(ctx context.Context, resourceID catalog.ResourceID) ([]*Booking, error)
	ListByStatus(ctx context.Context, status lifecycle.Status) ([]*Booking, error)
}

type CreateParams struct {
	ID              BookingID
	Window          *availability.Window
	Quantity        int
	RequestedStatus lifecycle.Status
	CustomerRef     string
	StaffRef        string
	TokenID         string
	ServiceDay      time.Time
	Now             time.Time
}

// NewBooking always creates a PENDING booking. Requesting CONFIRMED is accepted
// but the promotion happens in a separate Confirm call once capacity is committed.
func NewBooking(params CreateParams) (*Booking, error) {
	const op = "booking.record"
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, apperr.Validation(op, "id is required")
	}
	if params.Window == nil {
		return nil, apperr.Validation(op, "window is required")
	}
	if params.Quantity < 1 {
		return nil, apperr.Validation(op, "quantity must be >= 1, got %d", params.Quantity)
	}
	switch params.RequestedStatus {
	case "", lifecycle.StatusPending, lifecycle.StatusConfirmed:
	default:
		return nil, apperr.Validation(op, "bookings cannot be created as %s", params.RequestedStatus)
	}
	day := params.ServiceDay
	if day.IsZero() {
		day = params.Window.Spec.StartsAt()
	}
	now := params.Now.UTC()
	b := &Booking{
		ID:          params.ID,
		WindowID:    params.Window.ID,
		ResourceID:  params.Window.ResourceID,
		Kind:        params.Window.Kind(),
		Quantity:    params.Quantity,
		Status:      lifecycle.StatusPending,
		CustomerRef: strings.TrimSpace(params.CustomerRef),
		StaffRef:    strings.TrimSpace(params.StaffRef),
		TokenID:     params.TokenID,
		ServiceDay:  daterange.Day(day),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.Record(BookingRequested{BookingID: b.ID, WindowID: b.WindowID, ResourceID: b.ResourceID, Quantity: b.Quantity, CustomerRef: b.CustomerRef, At: now})
	return b, nil
}

func (b *Booking) IsTerminal() bool {
	return b.Status == lifecycle.StatusCompleted || b.Status == lifecycle.StatusCancelled
}

// HoldsCapacity reports whether the booking still counts against its window.
func (b *Booking) HoldsCapacity() bool {
	return b.Status == lifecycle.StatusPending || b.Status == lifecycle.StatusConfirmed
}

func (b *Booking) Confirm(now time.Time, fsm *lifecycle.Manager) error {
	if err := b.transition("booking.confirm", lifecycle.StatusConfirmed, "", fsm); err != nil {
		return err
	}
	b.UpdatedAt = now.UTC()
	b.Record(BookingConfirmed{BookingID: b.ID, WindowID: b.WindowID, ResourceID: b.ResourceID, Quantity: b.Quantity, At: b.UpdatedAt})
	return nil
}

func (b *Booking) Cancel(reason string, now time.Time, fsm *lifecycle.Manager) error {
	from := b.Status
	if err := b.transition("booking.cancel", lifecycle.StatusCancelled, reason, fsm); err != nil {
		return err
	}
	b.CancelReason = strings.TrimSpace(reason)
	b.UpdatedAt = now.UTC()
	b.Record(BookingCancelled{BookingID: b.ID, WindowID: b.WindowID, ResourceID: b.ResourceID, Quantity: b.Quantity, From: from, Reason: b.CancelReason, At: b.UpdatedAt})
	return nil
}

func (b *Booking) Complete(now time.Time, fsm *lifecycle.Manager) error {
	if err := b.transition("booking.complete", lifecycle.StatusCompleted, "", fsm); err != nil {
		return err
	}
	b.UpdatedAt = now.UTC()
	b.Record(BookingCompleted{BookingID: b.ID, WindowID: b.WindowID, ResourceID: b.ResourceID, Quantity: b.Quantity, At: b.UpdatedAt})
	return nil
}

// ConsumesCapacity reports whether the booking's units are gone from its
// window: it still holds them, or it completed without handing them back.
func (b *Booking) ConsumesCapacity() bool {
	return b.HoldsCapacity() || (b.Status == lifecycle.StatusCompleted && !b.ReleasesOnComplete())
}

// ReleasesOnComplete reports whether completing the booking frees its units.
// Rental units come back to the pool; seats and tickets are used up.
func (b *Booking) ReleasesOnComplete() bool {
	return b.Kind == catalog.KindUnitPool
}

func (b *Booking) transition(op string, to lifecycle.Status, reason string, fsm *lifecycle.Manager) error {
	if b.IsTerminal() {
		return apperr.AlreadyTerminal(op, "booking %s is %s", b.ID, b.Status)
	}
	if err := fsm.Transition(string(b.ID), lifecycle.EntityBooking, b.Status, to, lifecycle.Payload{Reason: reason}); err != nil {
		return err
	}
	b.Status = to
	return nil
}

// Clone returns a copy without pending events.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	cp := *b
	cp.EventRecorder = events.EventRecorder{}
	return &cp
}
