package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/clique/internal/domain"
)

const contextKeyUserID = "user_id"

// Sessions is the session capability consumed by the handler layer.
type Sessions interface {
	Issue(ctx context.Context, userID int64) (*http.Cookie, error)
	Authenticate(ctx context.Context, token string) (int64, error)
	CookieName() string
}

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)

			return err
		}
	}
}

// SessionGuard rejects requests without an active session before the
// handler runs and injects the authenticated user id into the context.
func SessionGuard(sessions Sessions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(sessions.CookieName())
			if err != nil || cookie.Value == "" {
				return domain.ErrForbidden
			}

			userID, err := sessions.Authenticate(c.Request().Context(), cookie.Value)
			if err != nil {
				return err
			}

			c.Set(contextKeyUserID, userID)
			return next(c)
		}
	}
}

// GetUserID extracts the authenticated user ID from echo context.
func GetUserID(c echo.Context) (int64, bool) {
	id, ok := c.Get(contextKeyUserID).(int64)
	return id, ok
}

// paramInt parses a path segment as an integer, failing with the coarse
// params error on junk input.
func paramInt(c echo.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, domain.ErrParamsError
	}
	return v, nil
}
