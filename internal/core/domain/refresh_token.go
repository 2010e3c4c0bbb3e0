package domain

import "time"

// RefreshTokenState is the lifecycle state of a refresh token record as seen at a given instant.
type RefreshTokenState string

const (
	RefreshTokenActive  RefreshTokenState = "active"
	RefreshTokenRevoked RefreshTokenState = "revoked"
	RefreshTokenExpired RefreshTokenState = "expired"
)

// RefreshToken is the durable, revocable record backing one issued refresh token.
// The signed token only carries ID; everything else stays server-side.
type RefreshToken struct {
	ID        string
	UserID    string
	TenantID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent string
	IPAddress string
}

// StateAt classifies the record at now. Revocation wins over expiry.
func (t *RefreshToken) StateAt(now time.Time) RefreshTokenState {
	if t.RevokedAt != nil {
		return RefreshTokenRevoked
	}
	if !now.Before(t.ExpiresAt) {
		return RefreshTokenExpired
	}
	return RefreshTokenActive
}
