package availability

import (
	"context"
	"fmt"
	"log/slog"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	domainavailability "activityhub/internal/domain/availability"
	domainbooking "activityhub/internal/domain/booking"
)

const reconciliationReportKey = "availability.reconciliation.report"

type ReconciliationReportCommand struct{}

func (c ReconciliationReportCommand) Key() string { return reconciliationReportKey }

// ReconciliationReportHandler compares every open window counter with the
// ledger and flags the ones that drifted. Counters are never corrected here.
type ReconciliationReportHandler struct {
	Coordinator *capacity.Coordinator
	Logger      *slog.Logger
}

func (h *ReconciliationReportHandler) Handle(ctx context.Context, _ ReconciliationReportCommand) (*dto.ReconciliationReport, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	windows, err := unit.Windows().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	domainavailability.SortWindows(windows)
	report := &dto.ReconciliationReport{Drifted: []dto.WindowDrift{}}
	for _, w := range windows {
		bookings, err := unit.Bookings().ListByWindow(ctx, w.ID)
		if err != nil {
			return nil, err
		}
		report.Checked++
		ledger := domainbooking.ConsumedByWindow(bookings)[w.ID]
		held := h.Coordinator.Outstanding(w.ID, domainbooking.RecordedTokens(bookings))
		if w.Counter.Consumed == ledger+held {
			continue
		}
		report.Drifted = append(report.Drifted, dto.WindowDrift{
			WindowID: string(w.ID),
			Counter:  w.Counter.Consumed,
			Ledger:   ledger,
			Held:     held,
		})
		if w.Flagged {
			continue
		}
		reason := fmt.Sprintf("counter %d differs from ledger %d plus held %d", w.Counter.Consumed, ledger, held)
		if err := h.Coordinator.Flag(ctx, w.ID, reason); err != nil {
			return nil, err
		}
	}
	if h.Logger != nil && len(report.Drifted) > 0 {
		h.Logger.WarnContext(ctx, "capacity drift detected",
			slog.Int("checked", report.Checked),
			slog.Int("drifted", len(report.Drifted)))
	}
	return report, nil
}

var _ commands.Handler[ReconciliationReportCommand, *dto.ReconciliationReport] = (*ReconciliationReportHandler)(nil)
