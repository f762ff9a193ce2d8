// Package telemetry wires Prometheus metrics and OpenTelemetry tracing into
// the coding service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	SubmissionsTotal       *prometheus.CounterVec
	ReviewTasksTotal       prometheus.Counter
	CatalogUnmatchedTotal  prometheus.Counter
	ReviewTransitionsTotal *prometheus.CounterVec
	InferenceBreakerState  prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewCollector registers every metric with reg. Tests pass a fresh
// prometheus.NewRegistry(); the server uses its own registry as well.
func NewCollector(namespace string, reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		SubmissionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coding",
			Name:      "submissions_total",
			Help:      "Encounter submissions by outcome status and prediction source.",
		}, []string{"status", "source"}),

		ReviewTasksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coding",
			Name:      "review_tasks_created_total",
			Help:      "Review tasks persisted by submissions.",
		}),

		CatalogUnmatchedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coding",
			Name:      "catalog_unmatched_total",
			Help:      "Predicted codes dropped because the catalog does not hold them.",
		}),

		ReviewTransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "operations_total",
			Help:      "Review lifecycle operations by action and result.",
		}, []string{"action", "result"}),

		InferenceBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "breaker_state",
			Help:      "Inference circuit breaker state: 0 closed, 1 half-open, 2 open. Alert if 2.",
		}),

		gatherer: reg,
	}
}

func (c *Collector) SubmissionCompleted(status, source string) {
	if source == "" {
		source = "none"
	}
	c.SubmissionsTotal.WithLabelValues(status, source).Inc()
}

func (c *Collector) ReviewTasksCreated(n int) {
	c.ReviewTasksTotal.Add(float64(n))
}

func (c *Collector) CatalogUnmatched(n int) {
	c.CatalogUnmatchedTotal.Add(float64(n))
}

func (c *Collector) ReviewTransition(action, result string) {
	c.ReviewTransitionsTotal.WithLabelValues(action, result).Inc()
}

// BreakerStateChanged matches gobreaker's OnStateChange hook.
func (c *Collector) BreakerStateChanged(_ string, _, to gobreaker.State) {
	switch to {
	case gobreaker.StateClosed:
		c.InferenceBreakerState.Set(0)
	case gobreaker.StateHalfOpen:
		c.InferenceBreakerState.Set(1)
	case gobreaker.StateOpen:
		c.InferenceBreakerState.Set(2)
	}
}

// Middleware records request counts and latency labelled by route template.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if ctx.Path() == "/metrics" {
				return next(ctx)
			}
			c.InFlightGauge.Inc()
			defer c.InFlightGauge.Dec()

			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			labels := []string{ctx.Request().Method, path, strconv.Itoa(status)}
			c.RequestsTotal.WithLabelValues(labels...).Inc()
			c.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
