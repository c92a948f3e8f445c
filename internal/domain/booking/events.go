package booking

import (
	"time"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
)

type BookingRequested struct {
	BookingID   BookingID
	WindowID    availability.WindowID
	ResourceID  catalog.ResourceID
	Quantity    int
	CustomerRef string
	At          time.Time
}

func (e BookingRequested) EventName() string     { return "booking.requested" }
func (e BookingRequested) AggregateID() string   { return string(e.BookingID) }
func (e BookingRequested) OccurredAt() time.Time { return e.At }

type BookingConfirmed struct {
	BookingID  BookingID
	WindowID   availability.WindowID
	ResourceID catalog.ResourceID
	Quantity   int
	At         time.Time
}

func (e BookingConfirmed) EventName() string     { return "booking.confirmed" }
func (e BookingConfirmed) AggregateID() string   { return string(e.BookingID) }
func (e BookingConfirmed) OccurredAt() time.Time { return e.At }

type BookingCancelled struct {
	BookingID  BookingID
	WindowID   availability.WindowID
	ResourceID catalog.ResourceID
	Quantity   int
	From       lifecycle.Status
	Reason     string
	At         time.Time
}

func (e BookingCancelled) EventName() string     { return "booking.cancelled" }
func (e BookingCancelled) AggregateID() string   { return string(e.BookingID) }
func (e BookingCancelled) OccurredAt() time.Time { return e.At }

type BookingCompleted struct {
	BookingID  BookingID
	WindowID   availability.WindowID
	ResourceID catalog.ResourceID
	Quantity   int
	At         time.Time
}

func (e BookingCompleted) EventName() string     { return "booking.completed" }
func (e BookingCompleted) AggregateID() string   { return string(e.BookingID) }
func (e BookingCompleted) OccurredAt() time.Time { return e.At }

type TicketIssued struct {
	TicketID  TicketID
	BookingID BookingID
	Quantity  int
	At        time.Time
}

func (e TicketIssued) EventName() string     { return "ticket.issued" }
func (e TicketIssued) AggregateID() string   { return string(e.TicketID) }
func (e TicketIssued) OccurredAt() time.Time { return e.At }

type TicketStatusChanged struct {
	TicketID  TicketID
	BookingID BookingID
	From      lifecycle.Status
	To        lifecycle.Status
	Reason    string
	At        time.Time
}

func (e TicketStatusChanged) EventName() string     { return "ticket.status_changed" }
func (e TicketStatusChanged) AggregateID() string   { return string(e.TicketID) }
func (e TicketStatusChanged) OccurredAt() time.Time { return e.At }
