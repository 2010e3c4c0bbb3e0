package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

const (
	collectionUsers       = "users"
	collectionTenants     = "tenants"
	collectionMemberships = "memberships"
)

// CredentialRepository implements ports.CredentialRepository on three collections.
type CredentialRepository struct {
	users       *mongo.Collection
	tenants     *mongo.Collection
	memberships *mongo.Collection
}

var _ ports.CredentialRepository = (*CredentialRepository)(nil)

func NewCredentialRepository(db *mongo.Database) *CredentialRepository {
	return &CredentialRepository{
		users:       db.Collection(collectionUsers),
		tenants:     db.Collection(collectionTenants),
		memberships: db.Collection(collectionMemberships),
	}
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	FirstName    string    `bson:"first_name,omitempty"`
	LastName     string    `bson:"last_name,omitempty"`
	Active       bool      `bson:"active"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type tenantDoc struct {
	ID        string    `bson:"_id"`
	Slug      string    `bson:"slug"`
	Name      string    `bson:"name"`
	CreatedAt time.Time `bson:"created_at"`
}

type membershipDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	TenantID  string    `bson:"tenant_id"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Active:       d.Active,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

func (d tenantDoc) toDomain() *domain.Tenant {
	return &domain.Tenant{ID: d.ID, Slug: d.Slug, Name: d.Name, CreatedAt: d.CreatedAt.UTC()}
}

func (d membershipDoc) toDomain() domain.Membership {
	return domain.Membership{
		ID:        d.ID,
		UserID:    d.UserID,
		TenantID:  d.TenantID,
		Role:      domain.Role(d.Role),
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func (r *CredentialRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findUser(ctx, bson.M{"email": email})
}

func (r *CredentialRepository) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findUser(ctx, bson.M{"_id": id})
}

func (r *CredentialRepository) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *CredentialRepository) FindTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return r.findTenant(ctx, bson.M{"slug": slug})
}

func (r *CredentialRepository) FindTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return r.findTenant(ctx, bson.M{"_id": id})
}

func (r *CredentialRepository) findTenant(ctx context.Context, filter bson.M) (*domain.Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc tenantDoc
	if err := r.tenants.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	return doc.toDomain(), nil
}

// ListMemberships returns memberships oldest first; _id breaks ties so the
// order is stable.
func (r *CredentialRepository) ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.memberships.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer cur.Close(ctx)

	var docs []membershipDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode memberships: %w", err)
	}

	out := make([]domain.Membership, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *CredentialRepository) FindMembership(ctx context.Context, userID, tenantID string) (*domain.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc membershipDoc
	err := r.memberships.FindOne(ctx, bson.M{"user_id": userID, "tenant_id": tenantID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("find membership: %w", err)
	}
	m := doc.toDomain()
	return &m, nil
}

// CreateAccount inserts tenant, user and OWNER membership in that order and
// deletes what was already written when a later insert fails. Standalone
// servers have no multi-document transactions, so the unique indexes on
// tenants.slug and users.email are what make concurrent registrations safe.
func (r *CredentialRepository) CreateAccount(ctx context.Context, acc ports.NewAccount) (*domain.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	acc.Tenant.ID = uuid.NewString()
	acc.User.ID = uuid.NewString()

	tenant := tenantDoc{
		ID:        acc.Tenant.ID,
		Slug:      acc.Tenant.Slug,
		Name:      acc.Tenant.Name,
		CreatedAt: acc.Tenant.CreatedAt.UTC(),
	}
	if _, err := r.tenants.InsertOne(ctx, tenant); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, fmt.Errorf("insert tenant: %w", err)
	}

	user := userDoc{
		ID:           acc.User.ID,
		Email:        acc.User.Email,
		PasswordHash: acc.User.PasswordHash,
		FirstName:    acc.User.FirstName,
		LastName:     acc.User.LastName,
		Active:       acc.User.Active,
		CreatedAt:    acc.User.CreatedAt.UTC(),
		UpdatedAt:    acc.User.UpdatedAt.UTC(),
	}
	if _, err := r.users.InsertOne(ctx, user); err != nil {
		r.undo(ctx, r.tenants, tenant.ID)
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	membership := membershipDoc{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TenantID:  tenant.ID,
		Role:      string(domain.RoleOwner),
		CreatedAt: user.CreatedAt,
	}
	if _, err := r.memberships.InsertOne(ctx, membership); err != nil {
		r.undo(ctx, r.users, user.ID)
		r.undo(ctx, r.tenants, tenant.ID)
		return nil, fmt.Errorf("insert membership: %w", err)
	}

	m := membership.toDomain()
	return &m, nil
}

func (r *CredentialRepository) undo(ctx context.Context, coll *mongo.Collection, id string) {
	ctx, cancel := detached(ctx)
	defer cancel()
	_, _ = coll.DeleteOne(ctx, bson.M{"_id": id})
}

func (r *CredentialRepository) SetUserActive(ctx context.Context, userID string, active bool, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"active": active, "updated_at": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// EnsureIndexes creates the uniqueness constraints registration depends on.
func (r *CredentialRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	unique := options.Index().SetUnique(true)

	if _, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}}, Options: unique,
	}); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	if _, err := r.tenants.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "slug", Value: 1}}, Options: unique,
	}); err != nil {
		return fmt.Errorf("tenants indexes: %w", err)
	}
	if _, err := r.memberships.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "tenant_id", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("memberships indexes: %w", err)
	}
	return nil
}
