package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sirpyerre/tenant-portal/internal/api/metrics"
	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

type AuthHandler struct {
	sessions ports.SessionService
	cookies  *CookieTransport
	// tokensInBody echoes raw tokens in responses for clients that cannot hold cookies.
	tokensInBody bool
}

func NewAuthHandler(sessions ports.SessionService, cookies *CookieTransport, tokensInBody bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, cookies: cookies, tokensInBody: tokensInBody}
}

type registerRequest struct {
	Email      string `json:"email"       validate:"required,email,max=320"`
	Password   string `json:"password"    validate:"required,min=8,max=100,password"`
	FirstName  string `json:"first_name"  validate:"max=100"`
	LastName   string `json:"last_name"   validate:"max=100"`
	TenantName string `json:"tenant_name" validate:"required,min=2,max=100"`
}

func (r *registerRequest) trim() {
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.TenantName = strings.TrimSpace(r.TenantName)
}

type loginRequest struct {
	Email      string `json:"email"                 validate:"required,email"`
	Password   string `json:"password"              validate:"required"`
	TenantSlug string `json:"tenant_slug,omitempty" validate:"omitempty,max=100"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type tenantResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type tokensResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type authResponse struct {
	Message string          `json:"message"`
	User    userResponse    `json:"user"`
	Tenant  tenantResponse  `json:"tenant"`
	Role    domain.Role     `json:"role"`
	Tokens  *tokensResponse `json:"tokens,omitempty"`
}

type refreshResponse struct {
	Message string          `json:"message"`
	Tokens  *tokensResponse `json:"tokens,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register creates a tenant and its owner, then signs the owner in.
//
// @Summary      Register a new tenant and owner
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Account details"
// @Success      201   {object}  authResponse
// @Failure      400   {object}  map[string]any
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		metrics.AuthRegistrationsTotal.WithLabelValues("validation").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	req.trim()
	if err := c.Validate(&req); err != nil {
		metrics.AuthRegistrationsTotal.WithLabelValues("validation").Inc()
		return err
	}

	res, err := h.sessions.Register(c.Request().Context(), ports.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		TenantName: req.TenantName,
		Client:     clientMeta(c),
	})
	metrics.AuthRegistrationsTotal.WithLabelValues(registrationResult(err)).Inc()
	if err != nil {
		return err
	}

	h.cookies.Write(c, res.Tokens)
	return c.JSON(http.StatusCreated, h.authBody("Registration successful", res))
}

// Login verifies credentials and starts a session.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  map[string]any
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("validation").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := c.Validate(&req); err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("validation").Inc()
		return err
	}

	res, err := h.sessions.Login(c.Request().Context(), ports.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		TenantSlug: req.TenantSlug,
		Client:     clientMeta(c),
	})
	metrics.AuthLoginsTotal.WithLabelValues(loginResult(err)).Inc()
	if err != nil {
		return err
	}

	h.cookies.Write(c, res.Tokens)
	return c.JSON(http.StatusOK, h.authBody("Login successful", res))
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// single-use: a second presentation fails.
//
// @Summary      Rotate refresh token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  false  "Refresh token, when not sent as a cookie"
// @Success      200   {object}  refreshResponse
// @Failure      401   {object}  map[string]string
// @Router       /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	token := h.refreshToken(c)
	pair, err := h.sessions.Rotate(c.Request().Context(), token, clientMeta(c))
	metrics.AuthRefreshTotal.WithLabelValues(refreshResult(err)).Inc()
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRefreshToken) || errors.Is(err, domain.ErrExpiredRefreshToken) {
			h.cookies.Clear(c)
		}
		return err
	}

	h.cookies.Write(c, *pair)
	return c.JSON(http.StatusOK, refreshResponse{Message: "Tokens refreshed", Tokens: h.tokens(*pair)})
}

// Logout revokes the session's refresh token and clears the cookies. It always succeeds.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  messageResponse
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	h.sessions.Logout(c.Request().Context(), h.refreshToken(c), clientMeta(c))
	h.cookies.Clear(c)
	return c.JSON(http.StatusOK, messageResponse{Message: "Logged out"})
}

// Session returns the identity behind the access token.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  ports.Session
// @Failure      401  {object}  map[string]string
// @Router       /api/auth/session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	sess := h.sessions.GetSession(c.Request().Context(), h.cookies.AccessToken(c))
	if sess == nil {
		return domain.ErrUnauthenticated
	}
	return c.JSON(http.StatusOK, sess)
}

// refreshToken prefers the cookie and falls back to a JSON body.
func (h *AuthHandler) refreshToken(c echo.Context) string {
	if token := h.cookies.RefreshToken(c); token != "" {
		return token
	}
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func (h *AuthHandler) authBody(msg string, res *ports.AuthResult) authResponse {
	return authResponse{
		Message: msg,
		User: userResponse{
			ID:        res.User.ID,
			Email:     res.User.Email,
			FirstName: res.User.FirstName,
			LastName:  res.User.LastName,
		},
		Tenant: tenantResponse{ID: res.Tenant.ID, Name: res.Tenant.Name, Slug: res.Tenant.Slug},
		Role:   res.Role,
		Tokens: h.tokens(res.Tokens),
	}
}

func (h *AuthHandler) tokens(pair ports.TokenPair) *tokensResponse {
	if !h.tokensInBody {
		return nil
	}
	return &tokensResponse{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func registrationResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	}
	return "error"
}

func loginResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrAccountDeactivated):
		return "deactivated"
	case errors.Is(err, domain.ErrNoTenantMembership):
		return "no_membership"
	}
	return "error"
}

func refreshResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrExpiredRefreshToken):
		return "expired"
	case errors.Is(err, domain.ErrInvalidRefreshToken):
		return "invalid"
	}
	return "error"
}
