package availability

import (
	"context"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	"activityhub/internal/app/handlers/support"
	domainavailability "activityhub/internal/domain/availability"
	"activityhub/internal/domain/shared/apperr"
)

const (
	reserveKey            = "availability.reservations.reserve"
	releaseReservationKey = "availability.reservations.release"
)

type ReserveCommand struct {
	WindowID string `json:"window_id" validate:"required"`
	Quantity int    `json:"quantity"`
}

func (c ReserveCommand) Key() string { return reserveKey }

// ReserveHandler places a hold on the window. The hold is turned into a
// booking by committing its token before it expires.
type ReserveHandler struct {
	Coordinator *capacity.Coordinator
}

func (h *ReserveHandler) Handle(ctx context.Context, cmd ReserveCommand) (*dto.Reservation, error) {
	unit, err := support.Unit(ctx)
	if err != nil {
		return nil, err
	}
	window, err := unit.Windows().ByID(ctx, domainavailability.WindowID(cmd.WindowID))
	if err != nil {
		return nil, err
	}
	if !window.AcceptsBookings() {
		return nil, apperr.AlreadyTerminal("availability.reserve", "window %s does not accept bookings", window.ID)
	}
	token, err := h.Coordinator.Reserve(ctx, window.ID, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	result := dto.MapReservation(token)
	return &result, nil
}

type ReleaseReservationCommand struct {
	Token string `json:"token" validate:"required"`
}

func (c ReleaseReservationCommand) Key() string { return releaseReservationKey }

type ReleaseReservationHandler struct {
	Coordinator *capacity.Coordinator
}

func (h *ReleaseReservationHandler) Handle(ctx context.Context, cmd ReleaseReservationCommand) (*dto.Reservation, error) {
	token, err := h.Coordinator.ReleaseToken(ctx, cmd.Token)
	if err != nil {
		return nil, err
	}
	result := dto.MapReservation(token)
	return &result, nil
}

var _ commands.Handler[ReserveCommand, *dto.Reservation] = (*ReserveHandler)(nil)
var _ commands.Handler[ReleaseReservationCommand, *dto.Reservation] = (*ReleaseReservationHandler)(nil)
