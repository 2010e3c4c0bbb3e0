package domain

import "time"

// TokenKind separates access tokens from refresh tokens signed with the same key.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// TokenClaims is the identity bound into a signed token. TokenID is set only for
// refresh tokens and names the RefreshToken record backing it.
type TokenClaims struct {
	Kind      TokenKind
	UserID    string
	TenantID  string
	Email     string
	Role      Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
