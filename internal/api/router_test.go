package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sirpyerre/tenant-portal/internal/api/handler"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

// countingSessions records how often a route reached the service.
type countingSessions struct {
	ports.SessionService
	calls int
}

func (s *countingSessions) Register(context.Context, ports.RegisterInput) (*ports.AuthResult, error) {
	s.calls++
	return nil, nil
}

func (s *countingSessions) Login(context.Context, ports.LoginInput) (*ports.AuthResult, error) {
	s.calls++
	return nil, nil
}

func TestRegisterRoutes_ValidationEnvelope(t *testing.T) {
	sessions := &countingSessions{}
	e := echo.New()
	RegisterRoutes(e, Deps{
		Sessions: sessions,
		Cookies:  handler.CookieConfig{AccessName: "access_token", RefreshName: "refresh_token", RefreshPath: "/api/auth"},
		Log:      zerolog.Nop(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"not-an-email","password":"short","tenant_name":"Acme"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.Error != "Input validation failed" {
		t.Fatalf("unexpected error message %q", body.Error)
	}
	fields := make(map[string]string)
	for _, d := range body.Details {
		fields[d.Field] = d.Message
	}
	if fields["email"] != "email must be a valid email" {
		t.Fatalf("unexpected email detail: %+v", body.Details)
	}
	if fields["password"] != "password must be at least 8 characters long" {
		t.Fatalf("unexpected password detail: %+v", body.Details)
	}
	if _, ok := fields["tenant_name"]; ok {
		t.Fatalf("valid tenant_name reported: %+v", body.Details)
	}
	if sessions.calls != 0 {
		t.Fatalf("service reached %d times with an invalid payload", sessions.calls)
	}
}

func TestRegisterRoutes_LoginPasswordRequired(t *testing.T) {
	sessions := &countingSessions{}
	e := echo.New()
	RegisterRoutes(e, Deps{Sessions: sessions, Log: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"owner@acme.io"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(body.Details) != 1 || body.Details[0].Field != "password" {
		t.Fatalf("unexpected details: %+v", body.Details)
	}
	if sessions.calls != 0 {
		t.Fatalf("service must not be called")
	}
}
