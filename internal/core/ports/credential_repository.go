package ports

import (
	"context"
	"time"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
)

// NewAccount is the unit created at registration: a tenant, its first user and
// the OWNER membership linking them.
type NewAccount struct {
	User   *domain.User
	Tenant *domain.Tenant
}

// CredentialRepository persists users, tenants and memberships.
type CredentialRepository interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	FindTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	FindTenantByID(ctx context.Context, id string) (*domain.Tenant, error)
	// ListMemberships returns the user's memberships ordered by creation time, oldest first.
	ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error)
	FindMembership(ctx context.Context, userID, tenantID string) (*domain.Membership, error)
	// CreateAccount stores the tenant, the user and an OWNER membership as one unit.
	// Duplicate email or slug yields domain.ErrEmailTaken / domain.ErrSlugTaken.
	CreateAccount(ctx context.Context, account NewAccount) (*domain.Membership, error)
	// SetUserActive flips the active flag and stamps updated_at with at.
	SetUserActive(ctx context.Context, userID string, active bool, at time.Time) error
}
