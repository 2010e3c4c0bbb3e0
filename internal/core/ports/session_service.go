package ports

import (
	"context"
	"time"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
)

// ClientMetadata is the audit context of the device presenting a request.
type ClientMetadata struct {
	UserAgent string
	IPAddress string
}

// RegisterInput carries a new account request.
type RegisterInput struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	TenantName string
	Client     ClientMetadata
}

// LoginInput carries credentials. TenantSlug optionally selects which membership to
// sign in with; when empty the oldest membership is used.
type LoginInput struct {
	Email      string
	Password   string
	TenantSlug string
	Client     ClientMetadata
}

// TokenPair is an access token plus the refresh token backing it.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Tokens TokenPair
	User   domain.User
	Tenant domain.Tenant
	Role   domain.Role
}

// SessionUser is the user part of a resolved session.
type SessionUser struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name,omitempty"`
	LastName  string      `json:"last_name,omitempty"`
	Role      domain.Role `json:"role"`
}

// SessionTenant is the tenant part of a resolved session.
type SessionTenant struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Session is the identity a request acts as, resolved from an access token and
// re-checked against the credential store.
type Session struct {
	User      SessionUser   `json:"user"`
	Tenant    SessionTenant `json:"tenant"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// HasRole reports whether the session's role is one of roles.
func (s *Session) HasRole(roles ...domain.Role) bool {
	if s == nil {
		return false
	}
	for _, r := range roles {
		if s.User.Role == r {
			return true
		}
	}
	return false
}

// SessionService is the session lifecycle state machine.
type SessionService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, in LoginInput) (*AuthResult, error)
	// Logout revokes the record behind refreshToken when it is valid. It never fails.
	Logout(ctx context.Context, refreshToken string, client ClientMetadata)
	Rotate(ctx context.Context, refreshToken string, client ClientMetadata) (*TokenPair, error)
	// GetSession returns nil for any invalid token or missing membership.
	GetSession(ctx context.Context, accessToken string) *Session
	SetUserActive(ctx context.Context, actor *Session, userID string, active bool) error
	PurgeInactiveTokens(ctx context.Context) (int64, error)
}
