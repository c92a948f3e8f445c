package availability

import (
	"context"
	"time"

	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	"activityhub/internal/app/queries"
	"activityhub/internal/app/uow"
	"activityhub/internal/domain/calendar"
	domaincatalog "activityhub/internal/domain/catalog"
	"activityhub/internal/domain/shared/daterange"
)

const getCalendarKey = "availability.calendar"

type GetCalendarQuery struct {
	ResourceIDs []string `validate:"required,min=1,dive,required"`
	// Anchor defaults to today.
	Anchor      time.Time
	Granularity string
	View        string
	Direction   string
}

func (q GetCalendarQuery) Key() string { return getCalendarKey }

type GetCalendarHandler struct {
	UoWFactory uow.UoWFactory
	Clock      func() time.Time
	Location   *time.Location
}

func (h *GetCalendarHandler) Handle(ctx context.Context, q GetCalendarQuery) (dto.Calendar, error) {
	g, err := calendar.ParseGranularity(q.Granularity)
	if err != nil {
		return dto.Calendar{}, err
	}
	view, err := calendar.ParseView(q.View)
	if err != nil {
		return dto.Calendar{}, err
	}
	dir, err := calendar.ParseDirection(q.Direction)
	if err != nil {
		return dto.Calendar{}, err
	}
	today := daterange.Today(support.Now(h.Clock), h.Location)
	anchor := q.Anchor
	if anchor.IsZero() {
		anchor = today
	}
	anchor, moved, err := calendar.Navigate(anchor, g, dir, view, today)
	if err != nil {
		return dto.Calendar{}, err
	}
	r, err := calendar.GetRange(anchor, g)
	if err != nil {
		return dto.Calendar{}, err
	}

	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Calendar{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	resources := make(map[domaincatalog.ResourceID]*domaincatalog.Resource, len(q.ResourceIDs))
	ids := make([]domaincatalog.ResourceID, 0, len(q.ResourceIDs))
	for _, raw := range q.ResourceIDs {
		id := domaincatalog.ResourceID(raw)
		if _, seen := resources[id]; seen {
			continue
		}
		res, err := unit.Resources().ByID(ctx, id)
		if err != nil {
			return dto.Calendar{}, err
		}
		resources[id] = res
		ids = append(ids, id)
	}
	windows, err := unit.Windows().Query(ctx, ids, r.Half())
	if err != nil {
		return dto.Calendar{}, err
	}
	return dto.MapCalendar(calendar.Build(windows, resources, r, view, today), moved), nil
}

var _ queries.Handler[GetCalendarQuery, dto.Calendar] = (*GetCalendarHandler)(nil)
