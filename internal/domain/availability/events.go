package availability

import (
	"time"

	"activityhub/internal/domain/catalog"
)

type WindowCreated struct {
	WindowID   WindowID
	ResourceID catalog.ResourceID
	Kind       catalog.Kind
	Total      int
	At         time.Time
}

func (e WindowCreated) EventName() string     { return "window.created" }
func (e WindowCreated) AggregateID() string   { return string(e.WindowID) }
func (e WindowCreated) OccurredAt() time.Time { return e.At }

type WindowBookingDisabled struct {
	WindowID   WindowID
	ResourceID catalog.ResourceID
	Reason     string
	At         time.Time
}

func (e WindowBookingDisabled) EventName() string     { return "window.booking_disabled" }
func (e WindowBookingDisabled) AggregateID() string   { return string(e.WindowID) }
func (e WindowBookingDisabled) OccurredAt() time.Time { return e.At }

type WindowClosed struct {
	WindowID   WindowID
	ResourceID catalog.ResourceID
	At         time.Time
}

func (e WindowClosed) EventName() string     { return "window.closed" }
func (e WindowClosed) AggregateID() string   { return string(e.WindowID) }
func (e WindowClosed) OccurredAt() time.Time { return e.At }

// WindowFlagged is raised when a compensating release failed and the counter
// may disagree with the ledger.
type WindowFlagged struct {
	WindowID WindowID
	Reason   string
	At       time.Time
}

func (e WindowFlagged) EventName() string     { return "window.flagged" }
func (e WindowFlagged) AggregateID() string   { return string(e.WindowID) }
func (e WindowFlagged) OccurredAt() time.Time { return e.At }

type WindowReconciled struct {
	WindowID   WindowID
	ResourceID catalog.ResourceID
	Previous   int
	Consumed   int
	At         time.Time
}

func (e WindowReconciled) EventName() string     { return "window.reconciled" }
func (e WindowReconciled) AggregateID() string   { return string(e.WindowID) }
func (e WindowReconciled) OccurredAt() time.Time { return e.At }
