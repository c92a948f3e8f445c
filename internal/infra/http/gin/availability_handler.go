package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	availabilityapp "activityhub/internal/app/handlers/availability"
	bookingapp "activityhub/internal/app/handlers/booking"
	"activityhub/internal/app/queries"
)

type AvailabilityHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h AvailabilityHandler) CreateWindow(c *gin.Context) {
	var cmd availabilityapp.CreateWindowCommand
	if err := bind(c, &cmd); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	result, err := commands.Dispatch[availabilityapp.CreateWindowCommand, *dto.Window](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h AvailabilityHandler) QueryWindows(c *gin.Context) {
	from, err := queryTime(c, "from")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	q := availabilityapp.QueryWindowsQuery{ResourceIDs: splitIDs(c.Query("resourceIds")), From: from, To: to}
	result, err := queries.Ask[availabilityapp.QueryWindowsQuery, []dto.Window](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if result == nil {
		result = []dto.Window{}
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) GetWindow(c *gin.Context) {
	result, err := queries.Ask[availabilityapp.GetWindowQuery, dto.Window](c.Request.Context(), h.Queries, availabilityapp.GetWindowQuery{WindowID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) Flagged(c *gin.Context) {
	result, err := queries.Ask[availabilityapp.ListFlaggedQuery, []dto.Window](c.Request.Context(), h.Queries, availabilityapp.ListFlaggedQuery{})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if result == nil {
		result = []dto.Window{}
	}
	c.JSON(http.StatusOK, result)
}

type closeWindowRequest struct {
	Cascade bool   `json:"cascade"`
	Reason  string `json:"reason"`
}

func (h AvailabilityHandler) CloseWindow(c *gin.Context) {
	var req closeWindowRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := availabilityapp.CloseWindowCommand{WindowID: c.Param("id"), Cascade: req.Cascade, Reason: req.Reason}
	result, err := commands.Dispatch[availabilityapp.CloseWindowCommand, *dto.Window](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) Reconcile(c *gin.Context) {
	cmd := availabilityapp.ReconcileWindowCommand{WindowID: c.Param("id")}
	result, err := commands.Dispatch[availabilityapp.ReconcileWindowCommand, *dto.Window](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) Reserve(c *gin.Context) {
	var cmd availabilityapp.ReserveCommand
	if err := bind(c, &cmd); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	result, err := commands.Dispatch[availabilityapp.ReserveCommand, *dto.Reservation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h AvailabilityHandler) CommitReservation(c *gin.Context) {
	var cmd bookingapp.CommitReservationCommand
	if err := bind(c, &cmd); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd.Token = c.Param("token")
	cmd.IdempotencyKeyV = c.GetHeader(idempotencyHeader)
	result, err := commands.Dispatch[bookingapp.CommitReservationCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h AvailabilityHandler) ReleaseReservation(c *gin.Context) {
	cmd := availabilityapp.ReleaseReservationCommand{Token: c.Param("token")}
	result, err := commands.Dispatch[availabilityapp.ReleaseReservationCommand, *dto.Reservation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) Calendar(c *gin.Context) {
	anchor, err := queryTime(c, "anchor")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	q := availabilityapp.GetCalendarQuery{
		ResourceIDs: splitIDs(c.Query("resourceIds")),
		Anchor:      anchor,
		Granularity: c.Query("granularity"),
		View:        c.Query("view"),
		Direction:   c.Query("direction"),
	}
	result, err := queries.Ask[availabilityapp.GetCalendarQuery, dto.Calendar](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func splitIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var _ AvailabilityHTTP = AvailabilityHandler{}
