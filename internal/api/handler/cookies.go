package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

// CookieConfig describes how tokens are bound to the browser.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	// RefreshPath scopes the refresh cookie to the auth endpoints.
	RefreshPath string
	Domain      string
	SameSite    http.SameSite
	Secure      bool
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
}

// CookieTransport writes and reads the session cookies. It holds no state.
type CookieTransport struct {
	cfg CookieConfig
}

func NewCookieTransport(cfg CookieConfig) *CookieTransport {
	if cfg.SameSite == 0 || cfg.SameSite == http.SameSiteNoneMode || cfg.SameSite == http.SameSiteDefaultMode {
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &CookieTransport{cfg: cfg}
}

// SameSiteFrom parses "lax" or "strict"; anything else yields Lax.
func SameSiteFrom(s string) http.SameSite {
	if strings.EqualFold(s, "strict") {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// Write sets both cookies. The access cookie covers the whole app; the refresh
// cookie is only sent to RefreshPath.
func (t *CookieTransport) Write(c echo.Context, pair ports.TokenPair) {
	c.SetCookie(t.cookie(t.cfg.AccessName, pair.AccessToken, "/", t.cfg.AccessTTL, pair.AccessExpiresAt))
	c.SetCookie(t.cookie(t.cfg.RefreshName, pair.RefreshToken, t.cfg.RefreshPath, t.cfg.RefreshTTL, pair.RefreshExpiresAt))
}

// Clear expires both cookies on the paths they were set on.
func (t *CookieTransport) Clear(c echo.Context) {
	for _, ck := range []*http.Cookie{
		t.cookie(t.cfg.AccessName, "", "/", 0, time.Unix(0, 0)),
		t.cookie(t.cfg.RefreshName, "", t.cfg.RefreshPath, 0, time.Unix(0, 0)),
	} {
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

// AccessToken reads the access cookie, falling back to an Authorization: Bearer header.
func (t *CookieTransport) AccessToken(c echo.Context) string {
	if ck, err := c.Cookie(t.cfg.AccessName); err == nil && ck.Value != "" {
		return ck.Value
	}
	return bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
}

// RefreshToken reads the refresh cookie.
func (t *CookieTransport) RefreshToken(c echo.Context) string {
	if ck, err := c.Cookie(t.cfg.RefreshName); err == nil {
		return ck.Value
	}
	return ""
}

func (t *CookieTransport) cookie(name, value, path string, ttl time.Duration, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   t.cfg.Domain,
		Expires:  expires,
		MaxAge:   int(ttl.Seconds()),
		Secure:   t.cfg.Secure,
		HttpOnly: true,
		SameSite: t.cfg.SameSite,
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
