package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
)

func renderError(t *testing.T, err error) (int, errorResponse) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/auth/login", nil), rec)

	NewHTTPErrorHandler(zerolog.Nop())(err, c)

	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return rec.Code, body
}

func TestHTTPErrorHandler_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
		{domain.ErrAccountDeactivated, http.StatusForbidden, "This account has been deactivated"},
		{domain.ErrNoTenantMembership, http.StatusBadRequest, "User is not associated with any tenant"},
		{domain.ErrInvalidRefreshToken, http.StatusUnauthorized, "Invalid refresh token"},
		{domain.ErrExpiredRefreshToken, http.StatusUnauthorized, "Refresh token expired"},
		{domain.ErrUnauthenticated, http.StatusUnauthorized, "Authentication required"},
		{domain.ErrForbidden, http.StatusForbidden, "Access forbidden"},
		{domain.ErrEmailTaken, http.StatusConflict, "This email is already registered"},
		{domain.ErrSlugTaken, http.StatusConflict, "This tenant name is already in use, please choose another one"},
		{domain.ErrUserNotFound, http.StatusNotFound, "User not found"},
		{fmt.Errorf("rotate: %w", domain.ErrInvalidRefreshToken), http.StatusUnauthorized, "Invalid refresh token"},
		{echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), http.StatusBadRequest, "invalid payload"},
		{echo.ErrNotFound, http.StatusNotFound, "Not Found"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			code, body := renderError(t, tc.err)
			if code != tc.code || body.Error != tc.msg {
				t.Fatalf("expected %d %q, got %d %q", tc.code, tc.msg, code, body.Error)
			}
		})
	}
}

func TestHTTPErrorHandler_ValidationDetails(t *testing.T) {
	ve := domain.NewValidationError("email", "email must be a valid email")
	ve.Add("password", "password is required")

	code, body := renderError(t, ve)
	if code != http.StatusBadRequest || body.Error != "Input validation failed" {
		t.Fatalf("unexpected response: %d %+v", code, body)
	}
	if len(body.Details) != 2 || body.Details[0].Field != "email" || body.Details[1].Field != "password" {
		t.Fatalf("unexpected details: %+v", body.Details)
	}
}

func TestHTTPErrorHandler_InternalErrorsAreOpaque(t *testing.T) {
	code, body := renderError(t, domain.Internal("find user", errors.New("connection reset by peer")))
	if code != http.StatusInternalServerError || body.Error != "Internal server error" {
		t.Fatalf("unexpected response: %d %+v", code, body)
	}
}
