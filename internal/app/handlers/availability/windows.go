package availability

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	"activityhub/internal/app/outbox"
	domainavailability "activityhub/internal/domain/availability"
	domainbooking "activityhub/internal/domain/booking"
	domaincatalog "activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
)

const (
	createWindowKey    = "availability.windows.create"
	closeWindowKey     = "availability.windows.close"
	reconcileWindowKey = "availability.windows.reconcile"
)

// CreateWindowCommand carries the fields of every window kind; only those of
// the resource's kind are read.
type CreateWindowCommand struct {
	WindowID      string    `json:"id"`
	ResourceID    string    `json:"resource_id" validate:"required"`
	Kind          string    `json:"kind" validate:"omitempty,resourcekind"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	AvailableFrom time.Time `json:"available_from"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidTo       time.Time `json:"valid_to"`
	Capacity      *int      `json:"capacity" validate:"omitempty,gte=0"`
}

func (c CreateWindowCommand) Key() string { return createWindowKey }

func (c CreateWindowCommand) spec(kind domaincatalog.Kind) domainavailability.Spec {
	switch kind {
	case domaincatalog.KindSlot:
		return domainavailability.SlotSpec{Start: c.Start, End: c.End}
	case domaincatalog.KindUnitPool:
		return domainavailability.UnitPoolSpec{AvailableFrom: c.AvailableFrom}
	default:
		return domainavailability.AllotmentSpec{ValidFrom: c.ValidFrom, ValidTo: c.ValidTo}
	}
}

type CreateWindowHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Clock   func() time.Time
	Logger  *slog.Logger
}

func (h *CreateWindowHandler) Handle(ctx context.Context, cmd CreateWindowCommand) (*dto.Window, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	res, err := unit.Resources().ByID(ctx, domaincatalog.ResourceID(cmd.ResourceID))
	if err != nil {
		return nil, err
	}
	kind := res.Kind()
	if strings.TrimSpace(cmd.Kind) != "" {
		if kind, err = domaincatalog.ParseKind(cmd.Kind); err != nil {
			return nil, err
		}
	}
	seq, err := unit.Windows().NextSequence(ctx)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(cmd.WindowID)
	if id == "" {
		id = uuid.NewString()
	}
	window, err := domainavailability.NewWindow(domainavailability.CreateParams{
		ID:       domainavailability.WindowID(id),
		Resource: res,
		Spec:     cmd.spec(kind),
		Capacity: cmd.Capacity,
		Sequence: seq,
		Now:      support.Now(h.Clock),
	})
	if err != nil {
		return nil, err
	}
	if err := unit.Windows().Save(ctx, window); err != nil {
		return nil, err
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), window); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.InfoContext(ctx, "window created",
			slog.String("window_id", string(window.ID)),
			slog.String("resource_id", string(window.ResourceID)),
			slog.Int("total", window.Counter.Total))
	}
	result := dto.MapWindow(window)
	return &result, nil
}

type CloseWindowCommand struct {
	WindowID string `json:"window_id" validate:"required"`
	// Cascade cancels the window's active bookings instead of refusing to close.
	Cascade bool   `json:"cascade"`
	Reason  string `json:"reason"`
}

func (c CloseWindowCommand) Key() string { return closeWindowKey }

type CloseWindowHandler struct {
	Coordinator *capacity.Coordinator
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Lifecycle   *lifecycle.Manager
	Clock       func() time.Time
	Logger      *slog.Logger
}

func (h *CloseWindowHandler) Handle(ctx context.Context, cmd CloseWindowCommand) (*dto.Window, error) {
	const op = "availability.close_window"
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	window, err := unit.Windows().ByID(ctx, domainavailability.WindowID(cmd.WindowID))
	if err != nil {
		return nil, err
	}
	if window.Closed {
		return nil, apperr.AlreadyTerminal(op, "window %s is already closed", window.ID)
	}
	bookings, err := unit.Bookings().ListByWindow(ctx, window.ID)
	if err != nil {
		return nil, err
	}
	var active []*domainbooking.Booking
	for _, b := range bookings {
		if b.HoldsCapacity() {
			active = append(active, b)
		}
	}
	if len(active) > 0 && !cmd.Cascade {
		return nil, apperr.Conflict(op, "window %s has %d active bookings", window.ID, len(active))
	}
	pending, err := h.Coordinator.Seal(ctx, window.ID, domainbooking.RecordedTokens(bookings))
	if err != nil {
		return nil, err
	}
	unit.AfterRollback(func(ctx context.Context) {
		if err := h.Coordinator.Unseal(ctx, window.ID); err != nil && h.Logger != nil {
			h.Logger.ErrorContext(ctx, "window reopen after failed close",
				slog.String("window_id", string(window.ID)),
				slog.Any("err", err))
		}
	})
	if err := h.releasePending(ctx, op, window.ID, pending, cmd.Cascade); err != nil {
		return nil, err
	}
	now := support.Now(h.Clock)
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "window closed"
	}
	var touched []outbox.Drainer
	for _, b := range active {
		drained, err := support.CancelBooking(ctx, unit, h.Coordinator, b, reason, now, support.Lifecycle(h.Lifecycle))
		if err != nil {
			return nil, err
		}
		touched = append(touched, drained...)
	}
	if err := window.Close(now); err != nil {
		return nil, err
	}
	if err := unit.Windows().Save(ctx, window); err != nil {
		return nil, err
	}
	touched = append(touched, window)
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), touched...); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.InfoContext(ctx, "window closed",
			slog.String("window_id", string(window.ID)),
			slog.Int("cancelled_bookings", len(active)))
	}
	result := dto.MapWindow(window)
	return &result, nil
}

// releasePending drops the uncommitted holds taken before the window was
// sealed. A committed hold whose booking is not visible yet belongs to a
// booking still being written, so the close is retried later.
func (h *CloseWindowHandler) releasePending(ctx context.Context, op string, windowID domainavailability.WindowID, pending []capacity.Token, cascade bool) error {
	for _, t := range pending {
		if t.State == capacity.TokenCommitted {
			return apperr.Conflict(op, "window %s has a booking in flight, retry", windowID)
		}
	}
	if len(pending) > 0 && !cascade {
		return apperr.Conflict(op, "window %s has %d open reservations", windowID, len(pending))
	}
	for _, t := range pending {
		if _, err := h.Coordinator.ReleaseToken(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

type ReconcileWindowCommand struct {
	WindowID string `json:"window_id" validate:"required"`
}

func (c ReconcileWindowCommand) Key() string { return reconcileWindowKey }

// ReconcileWindowHandler recomputes the window's consumption from the
// booking ledger and clears its reconciliation flag.
type ReconcileWindowHandler struct {
	Coordinator *capacity.Coordinator
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Clock       func() time.Time
	Logger      *slog.Logger
}

func (h *ReconcileWindowHandler) Handle(ctx context.Context, cmd ReconcileWindowCommand) (*dto.Window, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	window, err := unit.Windows().ByID(ctx, domainavailability.WindowID(cmd.WindowID))
	if err != nil {
		return nil, err
	}
	bookings, err := unit.Bookings().ListByWindow(ctx, window.ID)
	if err != nil {
		return nil, err
	}
	ledger := domainbooking.ConsumedByWindow(bookings)[window.ID]
	previous := window.Counter
	counter, err := h.Coordinator.Reconcile(ctx, window.ID, ledger, domainbooking.RecordedTokens(bookings))
	if err != nil {
		return nil, err
	}
	window.Reconciled(counter, support.Now(h.Clock))
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), window); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.InfoContext(ctx, "window reconciled",
			slog.String("window_id", string(window.ID)),
			slog.Int("previous", previous.Consumed),
			slog.Int("consumed", counter.Consumed))
	}
	result := dto.MapWindow(window)
	return &result, nil
}

var _ commands.Handler[CreateWindowCommand, *dto.Window] = (*CreateWindowHandler)(nil)
var _ commands.Handler[CloseWindowCommand, *dto.Window] = (*CloseWindowHandler)(nil)
var _ commands.Handler[ReconcileWindowCommand, *dto.Window] = (*ReconcileWindowHandler)(nil)
