package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

// Key layout:
//
//	rt:rec:<id>    hash with the record fields; revoked_at absent while active
//	rt:user:<uid>  set of record ids owned by a user
//	rt:expiry      sorted set of record ids scored by expires_at (unix ms)
//	rt:revoked     set of revoked record ids awaiting cleanup
const (
	recordPrefix = "rt:rec:"
	userPrefix   = "rt:user:"
	expiryKey    = "rt:expiry"
	revokedKey   = "rt:revoked"

	// DefaultRetention keeps expired records readable for a while so rotation
	// can still report them as expired instead of unknown.
	DefaultRetention = 24 * time.Hour
)

// revokeScript returns -1 when the record is missing, 0 when it was already
// revoked and 1 when this call revoked it.
var revokeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HSETNX', KEYS[1], 'revoked_at', ARGV[1]) == 0 then
  return 0
end
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

// revokeAllScript builds record keys from ARGV[2], so it needs every key on
// one node.
var revokeAllScript = redis.NewScript(`
local ids = redis.call('SMEMBERS', KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[2] .. id
  if redis.call('EXISTS', key) == 1 then
    if redis.call('HSETNX', key, 'revoked_at', ARGV[1]) == 1 then
      redis.call('SADD', KEYS[2], id)
      n = n + 1
    end
  else
    redis.call('SREM', KEYS[1], id)
  end
end
return n
`)

// RefreshTokenStore implements ports.RefreshTokenRepository on Redis.
type RefreshTokenStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

var _ ports.RefreshTokenRepository = (*RefreshTokenStore)(nil)

// NewRefreshTokenStore wraps client. retention <= 0 selects DefaultRetention.
func NewRefreshTokenStore(client redis.UniversalClient, retention time.Duration) *RefreshTokenStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RefreshTokenStore{client: client, retention: retention}
}

func recordKey(id string) string { return recordPrefix + id }
func userKey(uid string) string { return userPrefix + uid }

func (s *RefreshTokenStore) Create(ctx context.Context, in ports.NewRefreshToken) (*domain.RefreshToken, error) {
	rec := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		TenantID:  in.TenantID,
		IssuedAt:  in.IssuedAt.UTC(),
		ExpiresAt: in.ExpiresAt.UTC(),
		UserAgent: in.Client.UserAgent,
		IPAddress: in.Client.IPAddress,
	}

	key := recordKey(rec.ID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, map[string]any{
			"user_id":    rec.UserID,
			"tenant_id":  rec.TenantID,
			"issued_at":  formatTime(rec.IssuedAt),
			"expires_at": formatTime(rec.ExpiresAt),
			"user_agent": rec.UserAgent,
			"ip_address": rec.IPAddress,
		})
		p.ExpireAt(ctx, key, rec.ExpiresAt.Add(s.retention))
		p.SAdd(ctx, userKey(rec.UserID), rec.ID)
		p.ZAdd(ctx, expiryKey, redis.Z{Score: float64(rec.ExpiresAt.UnixMilli()), Member: rec.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	return rec, nil
}

func (s *RefreshTokenStore) Find(ctx context.Context, id string) (*domain.RefreshToken, error) {
	fields, err := s.client.HGetAll(ctx, recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRefreshTokenNotFound
	}
	return decodeRecord(id, fields)
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := revokeScript.Run(ctx, s.client, []string{recordKey(id), revokedKey}, formatTime(at), id).Int()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	switch res {
	case -1:
		return false, domain.ErrRefreshTokenNotFound
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	n, err := revokeAllScript.Run(ctx, s.client, []string{userKey(userID), revokedKey}, formatTime(at), recordPrefix).Int64()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return n, nil
}

// DeleteInactive removes revoked records and records expired at now, along with
// their index entries.
func (s *RefreshTokenStore) DeleteInactive(ctx context.Context, now time.Time) (int64, error) {
	expired, err := s.client.ZRangeByScore(ctx, expiryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired refresh tokens: %w", err)
	}
	revoked, err := s.client.SMembers(ctx, revokedKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list revoked refresh tokens: %w", err)
	}

	ids := make(map[string]struct{}, len(expired)+len(revoked))
	for _, id := range expired {
		ids[id] = struct{}{}
	}
	for _, id := range revoked {
		ids[id] = struct{}{}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	owners := make(map[string]*redis.StringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for id := range ids {
			owners[id] = p.HGet(ctx, recordKey(id), "user_id")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("load refresh token owners: %w", err)
	}

	dels := make([]*redis.IntCmd, 0, len(ids))
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for id, owner := range owners {
			dels = append(dels, p.Del(ctx, recordKey(id)))
			p.ZRem(ctx, expiryKey, id)
			p.SRem(ctx, revokedKey, id)
			if uid, err := owner.Result(); err == nil && uid != "" {
				p.SRem(ctx, userKey(uid), id)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete inactive refresh tokens: %w", err)
	}

	var n int64
	for _, d := range dels {
		n += d.Val()
	}
	return n, nil
}

func decodeRecord(id string, f map[string]string) (*domain.RefreshToken, error) {
	issued, err := parseTime(f["issued_at"])
	if err != nil {
		return nil, fmt.Errorf("decode refresh token %s: issued_at: %w", id, err)
	}
	expires, err := parseTime(f["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("decode refresh token %s: expires_at: %w", id, err)
	}

	rec := &domain.RefreshToken{
		ID:        id,
		UserID:    f["user_id"],
		TenantID:  f["tenant_id"],
		IssuedAt:  issued,
		ExpiresAt: expires,
		UserAgent: f["user_agent"],
		IPAddress: f["ip_address"],
	}
	if v, ok := f["revoked_at"]; ok {
		at, err := parseTime(v)
		if err != nil {
			return nil, fmt.Errorf("decode refresh token %s: revoked_at: %w", id, err)
		}
		rec.RevokedAt = &at
	}
	return rec, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
