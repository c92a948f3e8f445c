package availability

import (
	"context"
	"time"

	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	"activityhub/internal/app/queries"
	"activityhub/internal/app/uow"
	domainavailability "activityhub/internal/domain/availability"
	domaincatalog "activityhub/internal/domain/catalog"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
)

const (
	getWindowKey     = "availability.windows.get"
	queryWindowsKey  = "availability.windows.query"
	flaggedWindowKey = "availability.windows.flagged"
)

type GetWindowQuery struct {
	WindowID string `validate:"required"`
}

func (q GetWindowQuery) Key() string { return getWindowKey }

type GetWindowHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetWindowHandler) Handle(ctx context.Context, q GetWindowQuery) (dto.Window, error) {
	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Window{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	w, err := unit.Windows().ByID(ctx, domainavailability.WindowID(q.WindowID))
	if err != nil {
		return dto.Window{}, err
	}
	return dto.MapWindow(w), nil
}

// QueryWindowsQuery selects the windows of the resources overlapping the
// half-open interval [From, To).
type QueryWindowsQuery struct {
	ResourceIDs []string `validate:"required,min=1,dive,required"`
	From        time.Time
	To          time.Time
}

func (q QueryWindowsQuery) Key() string { return queryWindowsKey }

type QueryWindowsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *QueryWindowsHandler) Handle(ctx context.Context, q QueryWindowsQuery) ([]dto.Window, error) {
	if q.From.IsZero() || q.To.IsZero() {
		return nil, apperr.Validation("availability.query_windows", "from and to are required")
	}
	r, err := daterange.New(daterange.Naive(q.From), daterange.Naive(q.To))
	if err != nil {
		return nil, err
	}
	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	ids := make([]domaincatalog.ResourceID, 0, len(q.ResourceIDs))
	for _, id := range q.ResourceIDs {
		ids = append(ids, domaincatalog.ResourceID(id))
	}
	windows, err := unit.Windows().Query(ctx, ids, r)
	if err != nil {
		return nil, err
	}
	domainavailability.SortWindows(windows)
	return dto.MapWindows(windows), nil
}

type ListFlaggedQuery struct{}

func (q ListFlaggedQuery) Key() string { return flaggedWindowKey }

type ListFlaggedHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListFlaggedHandler) Handle(ctx context.Context, _ ListFlaggedQuery) ([]dto.Window, error) {
	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	windows, err := unit.Windows().ListFlagged(ctx)
	if err != nil {
		return nil, err
	}
	domainavailability.SortWindows(windows)
	return dto.MapWindows(windows), nil
}

var _ queries.Handler[GetWindowQuery, dto.Window] = (*GetWindowHandler)(nil)
var _ queries.Handler[QueryWindowsQuery, []dto.Window] = (*QueryWindowsHandler)(nil)
var _ queries.Handler[ListFlaggedQuery, []dto.Window] = (*ListFlaggedHandler)(nil)
