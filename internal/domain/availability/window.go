package availability

import (
	"context"
	"sort"
	"strings"
	"time"

	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
	"activityhub/internal/domain/shared/events"
)

type WindowID string

// Counter is the capacity state of a window. Remaining is always derived.
type Counter struct {
	Total    int
	Consumed int
}

func (c Counter) Remaining() int {
	if r := c.Total - c.Consumed; r > 0 {
		return r
	}
	return 0
}

func (c Counter) Valid() bool {
	return c.Total >= 0 && c.Consumed >= 0 && c.Consumed <= c.Total
}

// Consume returns the counter after taking q units or ErrCapacityExceeded unchanged.
func (c Counter) Consume(q int) (Counter, error) {
	if q <= 0 {
		return c, apperr.Validation("availability.consume", "quantity must be >= 1, got %d", q)
	}
	if c.Consumed+q > c.Total {
		return c, apperr.CapacityExceeded("availability.consume", "requested %d, remaining %d", q, c.Remaining())
	}
	c.Consumed += q
	return c, nil
}

// Restore gives back q units, floored at zero consumption.
func (c Counter) Restore(q int) Counter {
	c.Consumed -= q
	if c.Consumed < 0 {
		c.Consumed = 0
	}
	return c
}

type Window struct {
	ID               WindowID
	ResourceID       catalog.ResourceID
	ResourceSequence int64
	Sequence         int64
	Spec             Spec
	Counter          Counter
	Bookable         bool
	Closed           bool
	Flagged          bool
	FlagReason       string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	events.EventRecorder
}

// Repository persists window metadata. Counter columns are owned by CounterStore
// and Save never overwrites them.
type Repository interface {
	ByID(ctx context.Context, id WindowID) (*Window, error)
	Save(ctx context.Context, window *Window) error
	ListByResource(ctx context.Context, resourceID catalog.ResourceID) ([]*Window, error)
	Query(ctx context.Context, resourceIDs []catalog.ResourceID, r daterange.DateRange) ([]*Window, error)
	ListFlagged(ctx context.Context) ([]*Window, error)
	// ListActive returns every window that is not closed.
	ListActive(ctx context.Context) ([]*Window, error)
	NextSequence(ctx context.Context) (int64, error)
}

// CounterStore applies atomic capacity mutations. TryConsume must check and
// increment in one step: consumed + q <= total.
type CounterStore interface {
	TryConsume(ctx context.Context, id WindowID, quantity int) (Counter, error)
	Restore(ctx context.Context, id WindowID, quantity int) (Counter, error)
	// SetConsumed overwrites consumption and clears the reconciliation flag.
	SetConsumed(ctx context.Context, id WindowID, consumed int) (Counter, error)
	Flag(ctx context.Context, id WindowID, reason string, at time.Time) error
	// SetClosed sets the closed column TryConsume checks.
	SetClosed(ctx context.Context, id WindowID, closed bool) error
}

type CreateParams struct {
	ID       WindowID
	Resource *catalog.Resource
	Spec     Spec
	// Capacity overrides the capacity taken from the resource attributes.
	Capacity *int
	Sequence int64
	Now      time.Time
}

func NewWindow(params CreateParams) (*Window, error) {
	const op = "availability.create_window"
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, apperr.Validation(op, "id is required")
	}
	res := params.Resource
	if res == nil {
		return nil, apperr.Validation(op, "resource is required")
	}
	if res.IsArchived() {
		return nil, apperr.AlreadyTerminal(op, "resource %s is archived", res.ID)
	}
	if params.Spec == nil {
		return nil, apperr.Validation(op, "window spec is required")
	}
	if params.Spec.Kind() != res.Kind() {
		return nil, apperr.Validation(op, "%s window cannot belong to %s resource %s", params.Spec.Kind(), res.Kind(), res.ID)
	}
	now := daterange.Naive(params.Now)
	spec, err := params.Spec.normalize(res.Attributes, now)
	if err != nil {
		return nil, err
	}
	if err := spec.validate(now); err != nil {
		return nil, err
	}
	total := defaultCapacity(res.Attributes)
	if params.Capacity != nil {
		total = *params.Capacity
	}
	if total < 0 {
		return nil, apperr.Validation(op, "capacity must be >= 0")
	}
	w := &Window{
		ID:               params.ID,
		ResourceID:       res.ID,
		ResourceSequence: res.Sequence,
		Sequence:         params.Sequence,
		Spec:             spec,
		Counter:          Counter{Total: total},
		Bookable:         true,
		CreatedAt:        params.Now.UTC(),
		UpdatedAt:        params.Now.UTC(),
	}
	w.Record(WindowCreated{WindowID: w.ID, ResourceID: w.ResourceID, Kind: spec.Kind(), Total: total, At: w.CreatedAt})
	return w, nil
}

func defaultCapacity(attrs catalog.Attributes) int {
	switch a := attrs.(type) {
	case catalog.SlotAttributes:
		return a.MaxParticipants
	case catalog.UnitPoolAttributes:
		return a.TotalUnits
	case catalog.AllotmentAttributes:
		return a.Total
	}
	return 0
}

func (w *Window) Kind() catalog.Kind { return w.Spec.Kind() }

func (w *Window) Remaining() int { return w.Counter.Remaining() }

func (w *Window) SoldOut() bool { return w.Counter.Remaining() == 0 }

// AcceptsBookings reports whether new reservations may target the window.
func (w *Window) AcceptsBookings() bool { return w.Bookable && !w.Closed }

// DisableBooking marks the window non-bookable without touching its bookings.
func (w *Window) DisableBooking(reason string, now time.Time) {
	if !w.Bookable {
		return
	}
	w.Bookable = false
	w.UpdatedAt = now.UTC()
	w.Record(WindowBookingDisabled{WindowID: w.ID, ResourceID: w.ResourceID, Reason: reason, At: w.UpdatedAt})
}

func (w *Window) Close(now time.Time) error {
	if w.Closed {
		return apperr.AlreadyTerminal("availability.close_window", "window %s is already closed", w.ID)
	}
	w.Closed = true
	w.Bookable = false
	w.UpdatedAt = now.UTC()
	w.Record(WindowClosed{WindowID: w.ID, ResourceID: w.ResourceID, At: w.UpdatedAt})
	return nil
}

// Reconciled applies a ledger-derived consumption and clears the reconciliation flag.
func (w *Window) Reconciled(counter Counter, now time.Time) {
	previous := w.Counter.Consumed
	w.Counter = counter
	w.Flagged = false
	w.FlagReason = ""
	w.UpdatedAt = now.UTC()
	w.Record(WindowReconciled{WindowID: w.ID, ResourceID: w.ResourceID, Previous: previous, Consumed: counter.Consumed, At: w.UpdatedAt})
}

// SortWindows orders windows by start, then resource creation order, then window creation order.
func SortWindows(ws []*Window) {
	sort.SliceStable(ws, func(i, j int) bool {
		a, b := ws[i], ws[j]
		if sa, sb := a.Spec.StartsAt(), b.Spec.StartsAt(); !sa.Equal(sb) {
			return sa.Before(sb)
		}
		if a.ResourceSequence != b.ResourceSequence {
			return a.ResourceSequence < b.ResourceSequence
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ID < b.ID
	})
}

// Clone returns a deep copy without pending events.
func (w *Window) Clone() *Window {
	if w == nil {
		return nil
	}
	cp := *w
	cp.EventRecorder = events.EventRecorder{}
	return &cp
}
