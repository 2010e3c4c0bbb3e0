package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

const collectionAuthEvents = "auth_events"

// AuditRepository appends authentication events to the auth_events collection.
type AuditRepository struct {
	col *mongo.Collection
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{col: db.Collection(collectionAuthEvents)}
}

type auditDoc struct {
	Type       string    `bson:"type"`
	UserID     string    `bson:"user_id,omitempty"`
	TenantID   string    `bson:"tenant_id,omitempty"`
	TokenID    string    `bson:"token_id,omitempty"`
	ActorID    string    `bson:"actor_id,omitempty"`
	Email      string    `bson:"email,omitempty"`
	IPAddress  string    `bson:"ip_address,omitempty"`
	UserAgent  string    `bson:"user_agent,omitempty"`
	Reason     string    `bson:"reason,omitempty"`
	Count      int64     `bson:"count,omitempty"`
	OccurredAt time.Time `bson:"occurred_at"`
	RecordedAt time.Time `bson:"recorded_at"`
}

// Insert persists one event. OccurredAt is when the service saw it; recorded_at
// is when it reached the database.
func (r *AuditRepository) Insert(ctx context.Context, ev *domain.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := auditDoc{
		Type:       string(ev.Type),
		UserID:     ev.UserID,
		TenantID:   ev.TenantID,
		TokenID:    ev.TokenID,
		ActorID:    ev.ActorID,
		Email:      ev.Email,
		IPAddress:  ev.IPAddress,
		UserAgent:  ev.UserAgent,
		Reason:     ev.Reason,
		Count:      ev.Count,
		OccurredAt: ev.OccurredAt.UTC(),
		RecordedAt: time.Now().UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "occurred_at", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "occurred_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("auth_events indexes: %w", err)
	}
	return nil
}
