package catalog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	"activityhub/internal/app/middleware"
	"activityhub/internal/app/outbox"
	domaincatalog "activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
)

const (
	createResourceKey    = "catalog.resources.create"
	setResourceStatusKey = "catalog.resources.set_status"
	reviewResourceKey    = "catalog.resources.review"
)

type CreateResourceCommand struct {
	ResourceID      string    `json:"id"`
	VendorID        string    `json:"vendor_id" validate:"required"`
	Title           string    `json:"title"`
	Kind            string    `json:"kind" validate:"required,resourcekind"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=0"`
	MaxParticipants int       `json:"max_participants" validate:"gte=0"`
	TotalUnits      *int      `json:"total_units"`
	ValidFrom       time.Time `json:"valid_from"`
	ValidTo         time.Time `json:"valid_to"`
	Total           int       `json:"total" validate:"gte=0"`
	BasePriceCents  int64     `json:"base_price_cents" validate:"gte=0"`
	IdempotencyKeyV string    `json:"-"`
}

func (c CreateResourceCommand) Key() string { return createResourceKey }

func (c CreateResourceCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateResourceCommand) ResultPrototype() any { return &dto.Resource{} }

// Attributes builds the kind variant, rejecting fields missing for the kind.
func (c CreateResourceCommand) Attributes() (domaincatalog.Attributes, error) {
	const op = "catalog.create_resource"
	kind, err := domaincatalog.ParseKind(c.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case domaincatalog.KindSlot:
		if c.DurationMinutes <= 0 {
			return nil, apperr.Validation(op, "duration_minutes is required for SLOT resources")
		}
		return domaincatalog.SlotAttributes{DurationMinutes: c.DurationMinutes, MaxParticipants: c.MaxParticipants}, nil
	case domaincatalog.KindUnitPool:
		if c.TotalUnits == nil {
			return nil, apperr.Validation(op, "total_units is required for UNIT_POOL resources")
		}
		return domaincatalog.UnitPoolAttributes{TotalUnits: *c.TotalUnits}, nil
	default:
		if c.ValidFrom.IsZero() || c.ValidTo.IsZero() {
			return nil, apperr.Validation(op, "valid_from and valid_to are required for ALLOTMENT resources")
		}
		return domaincatalog.AllotmentAttributes{ValidFrom: c.ValidFrom, ValidTo: c.ValidTo, Total: c.Total}, nil
	}
}

type CreateResourceHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Clock   func() time.Time
	Logger  *slog.Logger
}

func (h *CreateResourceHandler) Handle(ctx context.Context, cmd CreateResourceCommand) (*dto.Resource, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	attrs, err := cmd.Attributes()
	if err != nil {
		return nil, err
	}
	vendor, err := unit.Vendors().ByID(ctx, domaincatalog.VendorID(cmd.VendorID))
	if err != nil {
		return nil, err
	}
	if vendor.Approval == lifecycle.StatusRejected || vendor.Approval == lifecycle.StatusArchived {
		return nil, apperr.AlreadyTerminal("catalog.create_resource", "vendor %s is %s", vendor.ID, vendor.Approval)
	}
	seq, err := unit.Resources().NextSequence(ctx)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(cmd.ResourceID)
	if id == "" {
		id = uuid.NewString()
	}
	res, err := domaincatalog.NewResource(domaincatalog.CreateParams{
		ID:             domaincatalog.ResourceID(id),
		VendorID:       vendor.ID,
		Title:          cmd.Title,
		Attributes:     attrs,
		BasePriceCents: cmd.BasePriceCents,
		Sequence:       seq,
		Now:            support.Now(h.Clock),
	})
	if err != nil {
		return nil, err
	}
	if err := unit.Resources().Save(ctx, res); err != nil {
		return nil, err
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), res); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.InfoContext(ctx, "resource created", "resource_id", res.ID, "vendor_id", res.VendorID, "kind", res.Kind())
	}
	result := dto.MapResource(res)
	return &result, nil
}

type SetResourceStatusCommand struct {
	ResourceID string `json:"resource_id" validate:"required"`
	Status     string `json:"status" validate:"required"`
	// ExpectedVersion guards against overwriting a concurrent edit when set.
	ExpectedVersion *int64 `json:"expected_version"`
}

func (c SetResourceStatusCommand) Key() string { return setResourceStatusKey }

// SetResourceStatusHandler moves the publish status. Archiving makes every
// window of the resource non-bookable; existing bookings are left alone.
type SetResourceStatusHandler struct {
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Lifecycle *lifecycle.Manager
	Clock     func() time.Time
	Logger    *slog.Logger
}

func (h *SetResourceStatusHandler) Handle(ctx context.Context, cmd SetResourceStatusCommand) (*dto.Resource, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	res, err := unit.Resources().ByID(ctx, domaincatalog.ResourceID(cmd.ResourceID))
	if err != nil {
		return nil, err
	}
	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != res.Version {
		return nil, apperr.Conflict("catalog.set_status", "resource %s is at version %d, expected %d", res.ID, res.Version, *cmd.ExpectedVersion)
	}
	now := support.Now(h.Clock)
	to := lifecycle.Status(strings.ToUpper(strings.TrimSpace(cmd.Status)))
	if err := res.SetStatus(to, now, support.Lifecycle(h.Lifecycle)); err != nil {
		return nil, err
	}
	if err := unit.Resources().Save(ctx, res); err != nil {
		return nil, err
	}
	aggregates := []outbox.Drainer{res}
	if res.IsArchived() {
		windows, err := unit.Windows().ListByResource(ctx, res.ID)
		if err != nil {
			return nil, err
		}
		for _, w := range windows {
			if !w.Bookable {
				continue
			}
			w.DisableBooking("resource archived", now)
			if err := unit.Windows().Save(ctx, w); err != nil {
				return nil, err
			}
			aggregates = append(aggregates, w)
		}
		if h.Logger != nil {
			h.Logger.InfoContext(ctx, "resource archived", "resource_id", res.ID, "windows_disabled", len(aggregates)-1)
		}
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), aggregates...); err != nil {
		return nil, err
	}
	result := dto.MapResource(res)
	return &result, nil
}

type ReviewResourceCommand struct {
	ResourceID string `json:"resource_id" validate:"required"`
	Status     string `json:"status" validate:"required"`
	Note       string `json:"note"`
}

func (c ReviewResourceCommand) Key() string { return reviewResourceKey }

type ReviewResourceHandler struct {
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Lifecycle *lifecycle.Manager
	Clock     func() time.Time
}

func (h *ReviewResourceHandler) Handle(ctx context.Context, cmd ReviewResourceCommand) (*dto.Resource, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	res, err := unit.Resources().ByID(ctx, domaincatalog.ResourceID(cmd.ResourceID))
	if err != nil {
		return nil, err
	}
	to := lifecycle.Status(strings.ToUpper(strings.TrimSpace(cmd.Status)))
	if err := res.Review(to, cmd.Note, support.Now(h.Clock), support.Lifecycle(h.Lifecycle)); err != nil {
		return nil, err
	}
	if err := unit.Resources().Save(ctx, res); err != nil {
		return nil, err
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), res); err != nil {
		return nil, err
	}
	result := dto.MapResource(res)
	return &result, nil
}

var _ commands.Handler[CreateResourceCommand, *dto.Resource] = (*CreateResourceHandler)(nil)
var _ commands.Handler[SetResourceStatusCommand, *dto.Resource] = (*SetResourceStatusHandler)(nil)
var _ commands.Handler[ReviewResourceCommand, *dto.Resource] = (*ReviewResourceHandler)(nil)
var _ middleware.IdempotentCommand = CreateResourceCommand{}
