package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error   string              `json:"error"`
	Details []domain.FieldError `json:"details,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "details": [...]}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, errorResponse{Error: "Input validation failed", Details: ve.Fields}
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Error: "Invalid email or password"}
	case errors.Is(err, domain.ErrAccountDeactivated):
		return http.StatusForbidden, errorResponse{Error: "This account has been deactivated"}
	case errors.Is(err, domain.ErrNoTenantMembership):
		return http.StatusBadRequest, errorResponse{Error: "User is not associated with any tenant"}
	case errors.Is(err, domain.ErrExpiredRefreshToken):
		return http.StatusUnauthorized, errorResponse{Error: "Refresh token expired"}
	case errors.Is(err, domain.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, errorResponse{Error: "Invalid refresh token"}
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, errorResponse{Error: "Authentication required"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: "Access forbidden"}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorResponse{Error: conflictMessage(err)}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Error: "User not found"}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "Internal server error"}
}

// conflictMessage strips the sentinel prefix and capitalises the rest,
// "conflict: this email is already registered" → "This email is already registered".
func conflictMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), domain.ErrConflict.Error()+": ")
	if msg == "" || msg == domain.ErrConflict.Error() {
		return "Conflict"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
