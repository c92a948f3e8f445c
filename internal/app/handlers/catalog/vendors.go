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
	"activityhub/internal/app/outbox"
	domaincatalog "activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
)

const (
	registerVendorKey = "catalog.vendors.register"
	reviewVendorKey   = "catalog.vendors.review"
)

type RegisterVendorCommand struct {
	VendorID string `json:"id"`
	Name     string `json:"name" validate:"required"`
	OwnerID  string `json:"owner_id" validate:"required"`
	Submit   bool   `json:"submit"`
}

func (c RegisterVendorCommand) Key() string { return registerVendorKey }

type RegisterVendorHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Clock   func() time.Time
	Logger  *slog.Logger
}

func (h *RegisterVendorHandler) Handle(ctx context.Context, cmd RegisterVendorCommand) (*dto.Vendor, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(cmd.VendorID)
	if id == "" {
		id = uuid.NewString()
	}
	vendor, err := domaincatalog.NewVendor(domaincatalog.VendorID(id), cmd.Name, cmd.OwnerID, cmd.Submit, support.Now(h.Clock))
	if err != nil {
		return nil, err
	}
	if err := unit.Vendors().Save(ctx, vendor); err != nil {
		return nil, err
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), vendor); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.InfoContext(ctx, "vendor registered", "vendor_id", vendor.ID, "owner_id", vendor.OwnerID)
	}
	result := dto.MapVendor(vendor)
	return &result, nil
}

type ReviewVendorCommand struct {
	VendorID string `json:"vendor_id" validate:"required"`
	Status   string `json:"status" validate:"required"`
	Note     string `json:"note"`
}

func (c ReviewVendorCommand) Key() string { return reviewVendorKey }

type ReviewVendorHandler struct {
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Lifecycle *lifecycle.Manager
	Clock     func() time.Time
}

func (h *ReviewVendorHandler) Handle(ctx context.Context, cmd ReviewVendorCommand) (*dto.Vendor, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	vendor, err := unit.Vendors().ByID(ctx, domaincatalog.VendorID(cmd.VendorID))
	if err != nil {
		return nil, err
	}
	to := lifecycle.Status(strings.ToUpper(strings.TrimSpace(cmd.Status)))
	if err := vendor.Review(to, cmd.Note, support.Now(h.Clock), support.Lifecycle(h.Lifecycle)); err != nil {
		return nil, err
	}
	if err := unit.Vendors().Save(ctx, vendor); err != nil {
		return nil, err
	}
	if err := outbox.RecordFrom(ctx, h.Outbox, support.Encoder(h.Encoder), vendor); err != nil {
		return nil, err
	}
	result := dto.MapVendor(vendor)
	return &result, nil
}

var _ commands.Handler[RegisterVendorCommand, *dto.Vendor] = (*RegisterVendorHandler)(nil)
var _ commands.Handler[ReviewVendorCommand, *dto.Vendor] = (*ReviewVendorHandler)(nil)
