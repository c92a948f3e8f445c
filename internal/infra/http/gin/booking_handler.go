package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	bookingapp "activityhub/internal/app/handlers/booking"
	"activityhub/internal/app/queries"
)

const idempotencyHeader = "Idempotency-Key"

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h BookingHandler) Create(c *gin.Context) {
	var cmd bookingapp.CreateBookingCommand
	if err := bind(c, &cmd); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd.IdempotencyKeyV = c.GetHeader(idempotencyHeader)
	result, err := commands.Dispatch[bookingapp.CreateBookingCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h BookingHandler) Get(c *gin.Context) {
	result, err := queries.Ask[bookingapp.GetBookingQuery, dto.Booking](c.Request.Context(), h.Queries, bookingapp.GetBookingQuery{BookingID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) History(c *gin.Context) {
	result, err := queries.Ask[bookingapp.BookingHistoryQuery, []dto.HistoryEntry](c.Request.Context(), h.Queries, bookingapp.BookingHistoryQuery{BookingID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if result == nil {
		result = []dto.HistoryEntry{}
	}
	c.JSON(http.StatusOK, result)
}

type versionedRequest struct {
	Reason          string `json:"reason"`
	ExpectedVersion *int64 `json:"expected_version"`
}

func (h BookingHandler) Confirm(c *gin.Context) {
	var req versionedRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := bookingapp.ConfirmBookingCommand{BookingID: c.Param("id"), ExpectedVersion: req.ExpectedVersion}
	h.transition(c, cmd)
}

func (h BookingHandler) Cancel(c *gin.Context) {
	var req versionedRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := bookingapp.CancelBookingCommand{
		BookingID:       c.Param("id"),
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
		IdempotencyKeyV: c.GetHeader(idempotencyHeader),
	}
	h.transition(c, cmd)
}

func (h BookingHandler) Complete(c *gin.Context) {
	var req versionedRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := bookingapp.CompleteBookingCommand{BookingID: c.Param("id"), ExpectedVersion: req.ExpectedVersion}
	h.transition(c, cmd)
}

func (h BookingHandler) RedeemTicket(c *gin.Context) {
	h.transition(c, bookingapp.RedeemTicketCommand{TicketID: c.Param("id")})
}

func (h BookingHandler) RevokeTicket(c *gin.Context) {
	var req versionedRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	h.transition(c, bookingapp.RevokeTicketCommand{TicketID: c.Param("id"), Reason: req.Reason})
}

// transition dispatches a booking status command and renders the updated booking.
func (h BookingHandler) transition(c *gin.Context, cmd commands.Command) {
	result, err := commands.Dispatch[commands.Command, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ BookingHTTP = BookingHandler{}
