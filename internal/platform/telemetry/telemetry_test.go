package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCollector_DomainCounters(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())

	c.SubmissionCompleted("completed", "remote")
	c.SubmissionCompleted("encounter_persist_failed", "")
	c.ReviewTasksCreated(3)
	c.CatalogUnmatched(2)
	c.ReviewTransition("approve", "ok")
	c.ReviewTransition("approve", "conflict")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.SubmissionsTotal.WithLabelValues("completed", "remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SubmissionsTotal.WithLabelValues("encounter_persist_failed", "none")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.ReviewTasksTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CatalogUnmatchedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ReviewTransitionsTotal.WithLabelValues("approve", "conflict")))
}

func TestCollector_BreakerState(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())

	c.BreakerStateChanged("inference", gobreaker.StateClosed, gobreaker.StateOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.InferenceBreakerState))
	c.BreakerStateChanged("inference", gobreaker.StateOpen, gobreaker.StateHalfOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.InferenceBreakerState))
	c.BreakerStateChanged("inference", gobreaker.StateHalfOpen, gobreaker.StateClosed)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.InferenceBreakerState))
}

func TestCollector_MiddlewareAndHandler(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())
	e := echo.New()
	e.Use(c.Middleware())
	e.GET("/api/v1/review-tasks/:id", func(ctx echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "missing")
	})
	e.GET("/metrics", echo.WrapHandler(c.Handler()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/review-tasks/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.RequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/review-tasks/:id", "404")))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_http_requests_total"))
}

func TestTracingMiddleware_RecordsServerSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	e := echo.New()
	e.Use(TracingMiddleware("test"))
	e.GET("/api/v1/catalog/:code", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/I10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/catalog/:code", spans[0].Name)
}

func TestInitTracing_Disabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, tp.Shutdown(context.Background()))
}
