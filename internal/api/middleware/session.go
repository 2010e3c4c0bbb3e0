package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

const sessionKey = "session"

// SessionResolver turns an access token into a session, nil when it does not resolve.
type SessionResolver interface {
	GetSession(ctx context.Context, accessToken string) *ports.Session
}

// TokenExtractor pulls the access token out of a request.
type TokenExtractor func(c echo.Context) string

// Session resolves the caller's session, when there is one, and stores it in the context.
// It never rejects a request; RequireSession and PageGuard do.
func Session(resolver SessionResolver, extract TokenExtractor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token := extract(c); token != "" {
				if sess := resolver.GetSession(c.Request().Context(), token); sess != nil {
					c.Set(sessionKey, sess)
				}
			}
			return next(c)
		}
	}
}

// CurrentSession returns the session loaded by Session, or nil.
func CurrentSession(c echo.Context) *ports.Session {
	sess, _ := c.Get(sessionKey).(*ports.Session)
	return sess
}

// RequireSession rejects API requests without a session with 401.
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if CurrentSession(c) == nil {
				return domain.ErrUnauthenticated
			}
			return next(c)
		}
	}
}

// PageGuard redirects page requests without a session to loginPath.
func PageGuard(loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if CurrentSession(c) == nil {
				return c.Redirect(http.StatusSeeOther, loginPath)
			}
			return next(c)
		}
	}
}
