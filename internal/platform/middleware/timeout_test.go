package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequestTimeout_CompletesWithinDeadline(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/api/v1/encounters")

	called := false
	h := RequestTimeout(5 * time.Second)(func(c echo.Context) error {
		called = true
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected a deadline on the request context")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called || rec.Code != http.StatusOK {
		t.Errorf("expected handler to run and return 200, got called=%v code=%d", called, rec.Code)
	}
}

func TestRequestTimeout_ReturnsGatewayTimeout(t *testing.T) {
	c, _ := newTestContext(http.MethodPost, "/api/v1/submissions")

	h := RequestTimeout(50 * time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})
	err := h(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", httpErr.Code)
	}
}

func TestRequestTimeout_OtherErrorsPassThrough(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/api/v1/encounters")
	want := echo.NewHTTPError(http.StatusNotFound, "nope")

	err := RequestTimeout(time.Second)(func(c echo.Context) error { return want })(c)
	if err != want {
		t.Errorf("expected the handler error unchanged, got %v", err)
	}
}

// A handler that outlives the deadline while ignoring cancellation still owns
// its context until it returns, and its response goes to its own caller only.
func TestRequestTimeout_LateHandlerKeepsItsRequest(t *testing.T) {
	e := echo.New()
	e.Use(RequestTimeout(20 * time.Millisecond))

	var (
		mu       sync.Mutex
		seenPath string
	)
	e.GET("/slow", func(c echo.Context) error {
		ctx := context.WithoutCancel(c.Request().Context())
		select {
		case <-ctx.Done():
		case <-time.After(60 * time.Millisecond):
		}
		mu.Lock()
		seenPath = c.Request().URL.Path
		mu.Unlock()
		return c.JSON(http.StatusCreated, map[string]string{"ok": "late"})
	})
	e.GET("/fast", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"ok": "fast"})
	})

	slow := httptest.NewRecorder()
	e.ServeHTTP(slow, httptest.NewRequest(http.MethodGet, "/slow", nil))
	fast := httptest.NewRecorder()
	e.ServeHTTP(fast, httptest.NewRequest(http.MethodGet, "/fast", nil))

	if slow.Code != http.StatusCreated {
		t.Errorf("expected the slow handler's own 201, got %d", slow.Code)
	}
	if got := fast.Body.String(); got != "{\"ok\":\"fast\"}\n" {
		t.Errorf("fast response was polluted: %q", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if seenPath != "/slow" {
		t.Errorf("slow handler saw request %q", seenPath)
	}
}

func TestRequestTimeout_SkipsHealthAndMetrics(t *testing.T) {
	for _, p := range []string{"/health", "/health/db", "/metrics"} {
		c, _ := newTestContext(http.MethodGet, p)
		h := RequestTimeout(time.Millisecond)(func(c echo.Context) error {
			if _, ok := c.Request().Context().Deadline(); ok {
				t.Errorf("%s: expected no deadline", p)
			}
			return c.NoContent(http.StatusOK)
		})
		if err := h(c); err != nil {
			t.Fatalf("%s: unexpected error: %v", p, err)
		}
	}
}

func TestRequestTimeout_ZeroDisables(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/api/v1/encounters")
	h := RequestTimeout(0)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("expected no deadline")
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
