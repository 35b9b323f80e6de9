package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/clique/internal/domain"
)

// Envelope is the standard API response wrapper. Every response carries a
// stable numeric errorCode; CodeSuccess marks success.
type Envelope struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
}

// Success writes the success envelope around data.
func Success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Envelope{
		ErrorCode: domain.CodeSuccess,
		Message:   "success",
		Data:      data,
	})
}

// HTTPErrorHandler is the global error handler for echo. Coded domain
// errors keep HTTP 200 and speak through errorCode, except Forbidden and
// TooManyRequests which surface their status.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, env := mapError(err)
	if jsonErr := c.JSON(status, env); jsonErr != nil {
		slog.Error("failed to send error response", "error", jsonErr)
	}
}

func mapError(err error) (int, Envelope) {
	// echo's own HTTP errors (404, 405, ...) pass their status through.
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, Envelope{ErrorCode: echoErr.Code, Message: msg}
	}

	var domErr *domain.Error
	if errors.As(err, &domErr) {
		status := http.StatusOK
		switch domErr.Code {
		case domain.CodeForbidden:
			status = http.StatusForbidden
		case domain.CodeTooManyRequests:
			status = http.StatusTooManyRequests
		}
		return status, Envelope{ErrorCode: domErr.Code, Message: domErr.Message}
	}

	slog.Error("unhandled error", "error", err)
	return http.StatusInternalServerError, Envelope{
		ErrorCode: http.StatusInternalServerError,
		Message:   "internal error",
	}
}
