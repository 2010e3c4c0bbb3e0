package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
)

// RBAC enforces role-based access control on API routes. Must run after Session.
func RBAC(allowedRoles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := CurrentSession(c)
			if sess == nil {
				return domain.ErrUnauthenticated
			}
			if !sess.HasRole(allowedRoles...) {
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}

// RequireRole is RBAC for pages: an authenticated caller lacking the role is
// redirected to fallback instead of receiving 403.
func RequireRole(fallback string, allowedRoles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !CurrentSession(c).HasRole(allowedRoles...) {
				return c.Redirect(http.StatusSeeOther, fallback)
			}
			return next(c)
		}
	}
}
