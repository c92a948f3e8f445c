package obs

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/app/capacity"
)

func init() { gin.SetMode(gin.TestMode) }

func TestMetricsObserveCoordinator(t *testing.T) {
	m := NewMetrics()
	m.ReserveAttempt(capacity.OutcomeReserved, time.Millisecond)
	m.ReserveAttempt(capacity.OutcomeExhausted, time.Millisecond)
	m.ReserveAttempt(capacity.OutcomeReserved, 0)
	m.Released(3)
	m.HoldExpired(2)
	m.WindowFlagged()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reserveAttempts.WithLabelValues("reserved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reserveAttempts.WithLabelValues("capacity_exceeded")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.released))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.holdsExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.windowsFlagged))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "activityhub_reserve_attempts_total")
}

func TestMiddlewarePropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := Middleware{Logger: newLogger(&buf, "prod", "info"), Metrics: NewMetrics()}
	r := gin.New()
	r.Use(m.RequestID(), m.AccessLog())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.httpRequests.WithLabelValues("GET", "/ping", "204")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestReadyzReportsFailingChecks(t *testing.T) {
	h := HealthHandlers{Checks: map[string]Check{
		"mongo": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}}
	r := gin.New()
	r.GET("/livez", h.Livez)
	r.GET("/readyz", h.Readyz)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
	assert.NotContains(t, rec.Body.String(), "mongo")

	err := h.Ready(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "redis:"))

	assert.NoError(t, HealthHandlers{}.Ready(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("Warning").String())
	assert.Equal(t, "INFO", parseLevel("").String())
}
