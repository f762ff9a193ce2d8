package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

var errTimedOut = echo.NewHTTPError(http.StatusGatewayTimeout, "request exceeded the allowed time limit")

// RequestTimeout puts a deadline on each request's context and nothing more:
// the handler still runs on the request goroutine and writes its own
// response. A handler error caused by the deadline becomes a 504. Health and
// metrics endpoints are left alone. A zero timeout disables the middleware.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout: timeout,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/health") || path == "/metrics"
		},
		ErrorHandler: func(err error, c echo.Context) error {
			if errors.Is(err, context.DeadlineExceeded) && !c.Response().Committed {
				return errTimedOut.WithInternal(err)
			}
			return err
		},
	})
}
