package catalog

import (
	"context"
	"time"

	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	"activityhub/internal/app/queries"
	"activityhub/internal/app/uow"
	domainbooking "activityhub/internal/domain/booking"
	domaincatalog "activityhub/internal/domain/catalog"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
)

const (
	getResourceKey    = "catalog.resources.get"
	listResourcesKey  = "catalog.resources.list"
	getVendorKey      = "catalog.vendors.get"
	resourceStatsKey  = "catalog.resources.stats"
	maxStatsRangeDays = 366
)

type GetResourceQuery struct {
	ResourceID string `validate:"required"`
}

func (q GetResourceQuery) Key() string { return getResourceKey }

type GetResourceHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetResourceHandler) Handle(ctx context.Context, q GetResourceQuery) (dto.Resource, error) {
	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Resource{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	res, err := unit.Resources().ByID(ctx, domaincatalog.ResourceID(q.ResourceID))
	if err != nil {
		return dto.Resource{}, err
	}
	return dto.MapResource(res), nil
}

type ListResourcesQuery struct {
	VendorID string `validate:"required"`
}

func (q ListResourcesQuery) Key() string { return listResourcesKey }

type ListResourcesHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListResourcesHandler) Handle(ctx context.Context, q ListResourcesQuery) ([]dto.Resource, error) {
	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Resources().ListByVendor(ctx, domaincatalog.VendorID(q.VendorID))
	if err != nil {
		return nil, err
	}
	return dto.MapResources(items), nil
}

type GetVendorQuery struct {
	VendorID string `validate:"required"`
}

func (q GetVendorQuery) Key() string { return getVendorKey }

type GetVendorHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetVendorHandler) Handle(ctx context.Context, q GetVendorQuery) (dto.Vendor, error) {
	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Vendor{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	v, err := unit.Vendors().ByID(ctx, domaincatalog.VendorID(q.VendorID))
	if err != nil {
		return dto.Vendor{}, err
	}
	return dto.MapVendor(v), nil
}

// ResourceStatsQuery aggregates the booking ledger per service day over the
// inclusive day range [From, To].
type ResourceStatsQuery struct {
	ResourceID string `validate:"required"`
	From       time.Time
	To         time.Time
}

func (q ResourceStatsQuery) Key() string { return resourceStatsKey }

type ResourceStatsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ResourceStatsHandler) Handle(ctx context.Context, q ResourceStatsQuery) (dto.ResourceStats, error) {
	const op = "catalog.stats"
	if q.From.IsZero() || q.To.IsZero() {
		return dto.ResourceStats{}, apperr.Validation(op, "from and to are required")
	}
	if q.To.Before(q.From) {
		return dto.ResourceStats{}, apperr.Validation(op, "to is before from")
	}
	r := daterange.DayRange(q.From, q.To)
	if len(r.Days()) > maxStatsRangeDays {
		return dto.ResourceStats{}, apperr.Validation(op, "range is limited to %d days", maxStatsRangeDays)
	}
	unit, ctx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ResourceStats{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	res, err := unit.Resources().ByID(ctx, domaincatalog.ResourceID(q.ResourceID))
	if err != nil {
		return dto.ResourceStats{}, err
	}
	bookings, err := unit.Bookings().ListByResource(ctx, res.ID)
	if err != nil {
		return dto.ResourceStats{}, err
	}
	stats := domainbooking.DailyStats(bookings, r)
	return dto.MapStats(string(res.ID), dto.FormatDay(q.From), dto.FormatDay(q.To), stats), nil
}

var _ queries.Handler[GetResourceQuery, dto.Resource] = (*GetResourceHandler)(nil)
var _ queries.Handler[ListResourcesQuery, []dto.Resource] = (*ListResourcesHandler)(nil)
var _ queries.Handler[GetVendorQuery, dto.Vendor] = (*GetVendorHandler)(nil)
var _ queries.Handler[ResourceStatsQuery, dto.ResourceStats] = (*ResourceStatsHandler)(nil)
