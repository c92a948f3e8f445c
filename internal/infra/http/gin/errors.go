package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"activityhub/internal/app/commands"
	"activityhub/internal/app/queries"
	"activityhub/internal/domain/shared/apperr"
)

// retryAfterSeconds is advertised when a window lock could not be acquired in time.
const retryAfterSeconds = 1

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ErrValidation:
		return http.StatusBadRequest
	case apperr.ErrInvalidWindow:
		return http.StatusUnprocessableEntity
	case apperr.ErrInvalidTransition, apperr.ErrCapacityExceeded, apperr.ErrAlreadyTerminal, apperr.ErrConflict:
		return http.StatusConflict
	case apperr.ErrReservationTimeout:
		return http.StatusServiceUnavailable
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrReconciliationRequired:
		return http.StatusInternalServerError
	}
	switch {
	case errors.Is(err, commands.ErrHandlerNotFound), errors.Is(err, queries.ErrHandlerNotFound):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}
	if kind := apperr.KindOf(err); kind != nil {
		body.Kind = kind.Error()
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	if logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "request failed",
			slog.Int("status", status),
			slog.String("path", c.FullPath()),
			slog.String("request_id", c.GetString("request_id")),
			slog.Any("error", err))
	}
	c.AbortWithStatusJSON(status, body)
}

// bind decodes the JSON body into dst. An empty body leaves dst untouched.
func bind(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("http.bind", "invalid request body: %v", err)
	}
	return nil
}
