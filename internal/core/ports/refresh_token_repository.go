package ports

import (
	"context"
	"time"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
)

// NewRefreshToken carries what the store needs to create a record. The store assigns the ID.
type NewRefreshToken struct {
	UserID    string
	TenantID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Client    ClientMetadata
}

// RefreshTokenRepository persists refresh token records.
//
// Revoke is a compare-and-swap: it sets revoked_at only when the record is not
// already revoked and reports whether this call made the change. Rotation relies
// on it so two concurrent rotations of the same record cannot both succeed.
type RefreshTokenRepository interface {
	Create(ctx context.Context, in NewRefreshToken) (*domain.RefreshToken, error)
	// Find returns domain.ErrRefreshTokenNotFound when no record exists. Expired
	// records are returned as-is; callers decide.
	Find(ctx context.Context, id string) (*domain.RefreshToken, error)
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	// DeleteInactive removes records that are revoked or expired at now.
	DeleteInactive(ctx context.Context, now time.Time) (int64, error)
}
