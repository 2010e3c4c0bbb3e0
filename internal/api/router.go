package api

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/sirpyerre/tenant-portal/internal/api/handler"
	"github.com/sirpyerre/tenant-portal/internal/api/middleware"
	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

const (
	loginPath     = "/login"
	dashboardPath = "/dashboard"
)

// Deps carries everything the application routes need.
type Deps struct {
	Sessions     ports.SessionService
	Cookies      handler.CookieConfig
	TokensInBody bool
	// Swagger mounts /swagger/*. Enabled in development only.
	Swagger bool
	Log     zerolog.Logger
}

// RegisterRoutes wires handlers, validation and error rendering onto e.
func RegisterRoutes(e *echo.Echo, deps Deps) {
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	cookies := handler.NewCookieTransport(deps.Cookies)
	authHandler := handler.NewAuthHandler(deps.Sessions, cookies, deps.TokensInBody)
	adminHandler := handler.NewAdminHandler(deps.Sessions)
	pageHandler := handler.NewPageHandler()

	withSession := middleware.Session(deps.Sessions, cookies.AccessToken)
	managers := []domain.Role{domain.RoleOwner, domain.RoleAdmin}

	// --- Auth routes ---
	auth := e.Group("/api/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/session", authHandler.Session)

	// --- Admin routes ---
	admin := e.Group("/api/admin", withSession, middleware.RequireSession(), middleware.RBAC(managers...))
	admin.POST("/users/:id/deactivate", adminHandler.Deactivate)
	admin.POST("/users/:id/reactivate", adminHandler.Reactivate)

	// --- Pages ---
	e.GET(loginPath, pageHandler.Login, withSession)
	e.GET(dashboardPath, pageHandler.Dashboard, withSession, middleware.PageGuard(loginPath))
	e.GET("/admin", pageHandler.Admin, withSession, middleware.PageGuard(loginPath), middleware.RequireRole(dashboardPath, managers...))

	if deps.Swagger {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}
}
