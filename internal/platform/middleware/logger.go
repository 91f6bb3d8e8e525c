package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/auth"
)

// Logger emits one structured line per request with the authenticated user
// attached. Health probes are skipped to keep the log clinically relevant.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if strings.HasPrefix(req.URL.Path, "/health") {
				return next(c)
			}

			start := time.Now()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}
			// The auth middleware runs inside next and replaces the request,
			// so the user id is only visible on the post-handler request.
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				evt = evt.Str("user_id", uid)
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
