package ginserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/dto"
	"activityhub/internal/app/engine"
	"activityhub/internal/app/history"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/infra/obs"
	"activityhub/internal/infra/storage/memory"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, limiter *ClientLimiter) *gin.Engine {
	t.Helper()
	store := memory.NewStore()
	box := memory.NewOutbox(nil)
	hist := memory.NewHistoryStore()
	box.Subscribe((&history.Projector{Store: hist}).Project)
	metrics := obs.NewMetrics()
	e := engine.New(engine.Deps{
		UoWFactory:  memory.Factory{Store: store},
		Counters:    memory.CounterStore{Store: store},
		Locker:      capacity.NewLocalLocker(time.Second),
		Outbox:      box,
		Idempotency: memory.NewIdempotencyStore(),
		History:     hist,
		Observer:    metrics,
		Clock:       func() time.Time { return now },
		HoldTTL:     time.Minute,
	})
	return NewRouter("test", obs.Middleware{Metrics: metrics}, obs.HealthHandlers{}, Handlers{
		Catalog:      CatalogHandler{Commands: e.Commands, Queries: e.Queries},
		Availability: AvailabilityHandler{Commands: e.Commands, Queries: e.Queries},
		Booking:      BookingHandler{Commands: e.Commands, Queries: e.Queries},
		Limiter:      limiter,
		Metrics:      metrics.Handler(),
	})
}

func do(t *testing.T, r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func seed(t *testing.T, r http.Handler, seats int) {
	t.Helper()
	rec := do(t, r, http.MethodPost, "/api/v1/vendors", map[string]any{"id": "v1", "name": "Lake Tours", "owner_id": "o1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, r, http.MethodPost, "/api/v1/resources", map[string]any{
		"id": "sunset", "vendor_id": "v1", "kind": "SLOT", "duration_minutes": 90, "max_participants": seats,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, r, http.MethodPost, "/api/v1/windows", map[string]any{
		"id": "w1", "resource_id": "sunset", "start": "2026-03-10T18:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t, nil)
	seed(t, r, 4)

	rec := do(t, r, http.MethodPost, "/api/v1/bookings", map[string]any{"id": "b1", "window_id": "w1", "quantity": 3}, idempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "CONFIRMED", decode[dto.Booking](t, rec).Status)

	replay := do(t, r, http.MethodPost, "/api/v1/bookings", map[string]any{"id": "b1", "window_id": "w1", "quantity": 3}, idempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, replay.Code)

	rec = do(t, r, http.MethodPost, "/api/v1/bookings", map[string]any{"window_id": "w1", "quantity": 2})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.ErrCapacityExceeded.Error(), decode[errorResponse](t, rec).Kind)

	rec = do(t, r, http.MethodGet, "/api/v1/windows/w1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[dto.Window](t, rec).Consumed)

	rec = do(t, r, http.MethodPost, "/api/v1/bookings/b1/cancel", map[string]any{"reason": "weather"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CANCELLED", decode[dto.Booking](t, rec).Status)

	rec = do(t, r, http.MethodGet, "/api/v1/windows/w1", nil)
	assert.Equal(t, 0, decode[dto.Window](t, rec).Consumed)

	rec = do(t, r, http.MethodGet, "/api/v1/bookings/b1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]dto.HistoryEntry](t, rec), 3)

	rec = do(t, r, http.MethodGet, "/metrics", nil)
	assert.Contains(t, rec.Body.String(), `activityhub_reserve_attempts_total{outcome="reserved"}`)
}

func TestErrorStatusesOverHTTP(t *testing.T) {
	r := newTestRouter(t, nil)
	seed(t, r, 4)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"missing booking", http.MethodGet, "/api/v1/bookings/nope", nil, http.StatusNotFound},
		{"bad quantity", http.MethodPost, "/api/v1/bookings", map[string]any{"window_id": "w1", "quantity": -1}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/windows", "not an object", http.StatusBadRequest},
		{"missing resource ids", http.MethodGet, "/api/v1/windows?from=2026-03-01&to=2026-03-31", nil, http.StatusBadRequest},
		{"bad date", http.MethodGet, "/api/v1/calendar?resourceIds=sunset&anchor=tomorrow", nil, http.StatusBadRequest},
		{"invalid window range", http.MethodGet, "/api/v1/windows?resourceIds=sunset&from=2026-03-31&to=2026-03-01", nil, http.StatusUnprocessableEntity},
		{"bad transition", http.MethodPatch, "/api/v1/resources/sunset/status", map[string]any{"status": "ARCHIVED"}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, r, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestWindowQueriesOverHTTP(t *testing.T) {
	r := newTestRouter(t, nil)
	seed(t, r, 4)

	rec := do(t, r, http.MethodGet, "/api/v1/windows?resourceIds=sunset&from=2026-03-01&to=2026-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decode[[]dto.Window](t, rec), 1)

	rec = do(t, r, http.MethodGet, "/api/v1/windows/flagged", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/v1/calendar?resourceIds=sunset&anchor=2026-03-10&granularity=week", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cal := decode[dto.Calendar](t, rec)
	assert.NotEmpty(t, cal.Days)
}

func TestReservationFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t, nil)
	seed(t, r, 4)

	rec := do(t, r, http.MethodPost, "/api/v1/reservations", map[string]any{"window_id": "w1", "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hold := decode[dto.Reservation](t, rec)

	rec = do(t, r, http.MethodPost, "/api/v1/reservations/"+hold.Token+"/commit", map[string]any{"id": "b1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, r, http.MethodPost, "/api/v1/reservations/"+hold.Token+"/release", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestRateLimitOnBookingEndpoints(t *testing.T) {
	limiter := NewClientLimiter(0.001, 1)
	limiter.now = func() time.Time { return now }
	r := newTestRouter(t, limiter)
	seed(t, r, 10)

	rec := do(t, r, http.MethodPost, "/api/v1/bookings", map[string]any{"window_id": "w1", "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/v1/bookings", map[string]any{"window_id": "w1", "quantity": 1})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = do(t, r, http.MethodGet, "/api/v1/windows/w1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusForKinds(t *testing.T) {
	cases := map[error]int{
		apperr.Validation("op", "x"):                         http.StatusBadRequest,
		apperr.InvalidWindow("op", "x"):                      http.StatusUnprocessableEntity,
		apperr.InvalidTransition("op", "x"):                  http.StatusConflict,
		apperr.CapacityExceeded("op", "x"):                   http.StatusConflict,
		apperr.ReservationTimeout("op", "x"):                 http.StatusServiceUnavailable,
		apperr.AlreadyTerminal("op", "x"):                    http.StatusConflict,
		apperr.NotFound("op", "x"):                           http.StatusNotFound,
		apperr.Conflict("op", "x"):                           http.StatusConflict,
		apperr.Reconciliation("op", errors.New("boom"), "x"): http.StatusInternalServerError,
		errors.New("plain"):                                  http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestReservationTimeoutSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/slow", func(c *gin.Context) { respondError(c, nil, apperr.ReservationTimeout("op", "lock busy")) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
