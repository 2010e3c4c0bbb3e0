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

const collectionRefreshTokens = "refresh_tokens"

// RefreshTokenRepository implements ports.RefreshTokenRepository.
type RefreshTokenRepository struct {
	col *mongo.Collection
}

var _ ports.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

func NewRefreshTokenRepository(db *mongo.Database) *RefreshTokenRepository {
	return &RefreshTokenRepository{col: db.Collection(collectionRefreshTokens)}
}

// revoked_at is always written, as null while active, so the conditional
// filter below matches on a single field.
type refreshTokenDoc struct {
	ID        string     `bson:"_id"`
	UserID    string     `bson:"user_id"`
	TenantID  string     `bson:"tenant_id"`
	IssuedAt  time.Time  `bson:"issued_at"`
	ExpiresAt time.Time  `bson:"expires_at"`
	RevokedAt *time.Time `bson:"revoked_at"`
	UserAgent string     `bson:"user_agent,omitempty"`
	IPAddress string     `bson:"ip_address,omitempty"`
}

func (d refreshTokenDoc) toDomain() *domain.RefreshToken {
	rt := &domain.RefreshToken{
		ID:        d.ID,
		UserID:    d.UserID,
		TenantID:  d.TenantID,
		IssuedAt:  d.IssuedAt.UTC(),
		ExpiresAt: d.ExpiresAt.UTC(),
		UserAgent: d.UserAgent,
		IPAddress: d.IPAddress,
	}
	if d.RevokedAt != nil {
		at := d.RevokedAt.UTC()
		rt.RevokedAt = &at
	}
	return rt
}

func (r *RefreshTokenRepository) Create(ctx context.Context, in ports.NewRefreshToken) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := refreshTokenDoc{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		TenantID:  in.TenantID,
		IssuedAt:  in.IssuedAt.UTC(),
		ExpiresAt: in.ExpiresAt.UTC(),
		UserAgent: in.Client.UserAgent,
		IPAddress: in.Client.IPAddress,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *RefreshTokenRepository) Find(ctx context.Context, id string) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc refreshTokenDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return doc.toDomain(), nil
}

// Revoke sets revoked_at only while it is null. The single-document update is
// atomic, so of two concurrent callers exactly one sees MatchedCount == 1.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": at.UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := r.col.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count refresh token: %w", err)
	}
	if n == 0 {
		return false, domain.ErrRefreshTokenNotFound
	}
	return false, nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateMany(ctx,
		bson.M{"user_id": userID, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": at.UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *RefreshTokenRepository) DeleteInactive(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	res, err := r.col.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"revoked_at": bson.M{"$ne": nil}},
		bson.M{"expires_at": bson.M{"$lte": now.UTC()}},
	}})
	if err != nil {
		return 0, fmt.Errorf("delete inactive refresh tokens: %w", err)
	}
	return res.DeletedCount, nil
}

// EnsureIndexes supports per-user revocation and the cleanup sweep.
func (r *RefreshTokenRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "revoked_at", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens indexes: %w", err)
	}
	return nil
}
