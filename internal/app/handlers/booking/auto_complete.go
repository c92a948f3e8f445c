package booking

import (
	"context"
	"log/slog"
	"time"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/commands"
	"activityhub/internal/app/handlers/support"
	"activityhub/internal/app/outbox"
	domainavailability "activityhub/internal/domain/availability"
	domainbooking "activityhub/internal/domain/booking"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/daterange"
)

const autoCompleteKey = "booking.auto_complete"

type AutoCompleteCommand struct{}

func (c AutoCompleteCommand) Key() string { return autoCompleteKey }

type AutoCompleteResult struct {
	Completed []string `json:"completed"`
}

// AutoCompleteHandler completes confirmed slot bookings whose departure has ended.
type AutoCompleteHandler struct {
	Coordinator *capacity.Coordinator
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Lifecycle   *lifecycle.Manager
	Clock       func() time.Time
	Logger      *slog.Logger
}

func (h *AutoCompleteHandler) Handle(ctx context.Context, _ AutoCompleteCommand) (*AutoCompleteResult, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	confirmed, err := unit.Bookings().ListByStatus(ctx, lifecycle.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	windows := make(map[domainavailability.WindowID]*domainavailability.Window)
	for _, b := range confirmed {
		if _, ok := windows[b.WindowID]; ok {
			continue
		}
		w, err := unit.Windows().ByID(ctx, b.WindowID)
		if err != nil {
			return nil, err
		}
		windows[w.ID] = w
	}
	now := support.Now(h.Clock)
	due := domainbooking.DueForCompletion(confirmed, windows, daterange.Naive(now))
	result := &AutoCompleteResult{Completed: make([]string, 0, len(due))}
	var touched []outbox.Drainer
	for _, b := range due {
		drained, err := complete(ctx, unit, h.Coordinator, b, now, support.Lifecycle(h.Lifecycle))
		if err != nil {
			return nil, err
		}
		touched = append(touched, drained...)
		result.Completed = append(result.Completed, string(b.ID))
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), touched...); err != nil {
		return nil, err
	}
	if h.Logger != nil && len(due) > 0 {
		h.Logger.InfoContext(ctx, "bookings auto-completed", slog.Int("count", len(due)))
	}
	return result, nil
}

var _ commands.Handler[AutoCompleteCommand, *AutoCompleteResult] = (*AutoCompleteHandler)(nil)
