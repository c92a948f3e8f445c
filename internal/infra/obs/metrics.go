package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"activityhub/internal/app/capacity"
)

const namespace = "activityhub"

// Metrics holds the engine's prometheus collectors. It implements
// capacity.Observer.
type Metrics struct {
	registry *prometheus.Registry

	reserveAttempts *prometheus.CounterVec
	lockWait        prometheus.Histogram
	released        prometheus.Counter
	holdsExpired    prometheus.Counter
	windowsFlagged  prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reserveAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserve_attempts_total",
			Help:      "Reservation attempts by outcome.",
		}, []string{"outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "window_lock_wait_seconds",
			Help:      "Time spent waiting for the per-window lock.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2},
		}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_released_total",
			Help:      "Capacity units returned to windows.",
		}),
		holdsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_units_expired_total",
			Help:      "Units released because their reservation hold expired.",
		}),
		windowsFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_flagged_total",
			Help:      "Windows flagged for reconciliation.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reserveAttempts, m.lockWait, m.released, m.holdsExpired, m.windowsFlagged,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ReserveAttempt(outcome capacity.Outcome, lockWait time.Duration) {
	m.reserveAttempts.WithLabelValues(string(outcome)).Inc()
	if outcome != capacity.OutcomeInvalid {
		m.lockWait.Observe(lockWait.Seconds())
	}
}

func (m *Metrics) Released(quantity int) { m.released.Add(float64(quantity)) }

func (m *Metrics) HoldExpired(quantity int) { m.holdsExpired.Add(float64(quantity)) }

func (m *Metrics) WindowFlagged() { m.windowsFlagged.Inc() }

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

var _ capacity.Observer = (*Metrics)(nil)
