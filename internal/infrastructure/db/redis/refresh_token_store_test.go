package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

func newTestStore(t *testing.T) (*RefreshTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRefreshTokenStore(client, time.Hour), mr
}

func create(t *testing.T, s *RefreshTokenStore, userID string, issued, expires time.Time) *domain.RefreshToken {
	t.Helper()
	rec, err := s.Create(context.Background(), ports.NewRefreshToken{
		UserID:    userID,
		TenantID:  "ten_1",
		IssuedAt:  issued,
		ExpiresAt: expires,
		Client:    ports.ClientMetadata{UserAgent: "curl/8.0", IPAddress: "203.0.113.7"},
	})
	require.NoError(t, err)
	return rec
}

func TestRefreshTokenStore_CreateAndFind(t *testing.T) {
	s, mr := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	rec := create(t, s, "usr_1", now, now.Add(7*24*time.Hour))

	got, err := s.Find(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", got.UserID)
	assert.Equal(t, "ten_1", got.TenantID)
	assert.True(t, got.IssuedAt.Equal(now))
	assert.True(t, got.ExpiresAt.Equal(rec.ExpiresAt))
	assert.Nil(t, got.RevokedAt)
	assert.Equal(t, "curl/8.0", got.UserAgent)
	assert.Equal(t, "203.0.113.7", got.IPAddress)

	assert.True(t, mr.Exists(recordKey(rec.ID)))
	assert.Greater(t, mr.TTL(recordKey(rec.ID)), 7*24*time.Hour)

	_, err = s.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRefreshTokenNotFound)
}

func TestRefreshTokenStore_RevokeIsCompareAndSwap(t *testing.T) {
	s, _ := newTestStore(t)
	now := time.Now().UTC()
	rec := create(t, s, "usr_1", now, now.Add(time.Hour))

	ok, err := s.Revoke(context.Background(), rec.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Revoke(context.Background(), rec.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "second revoke must report no change")

	got, err := s.Find(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, got.RevokedAt.Equal(now), "first revocation time must be kept")

	_, err = s.Revoke(context.Background(), "missing", now)
	assert.ErrorIs(t, err, domain.ErrRefreshTokenNotFound)
}

func TestRefreshTokenStore_ConcurrentRevoke(t *testing.T) {
	s, _ := newTestStore(t)
	now := time.Now().UTC()
	rec := create(t, s, "usr_1", now, now.Add(time.Hour))

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Revoke(context.Background(), rec.ID, now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRefreshTokenStore_RevokeAllForUser(t *testing.T) {
	s, _ := newTestStore(t)
	now := time.Now().UTC()
	a := create(t, s, "usr_1", now, now.Add(time.Hour))
	b := create(t, s, "usr_1", now, now.Add(time.Hour))
	other := create(t, s, "usr_2", now, now.Add(time.Hour))

	_, err := s.Revoke(context.Background(), a.ID, now)
	require.NoError(t, err)

	n, err := s.RevokeAllForUser(context.Background(), "usr_1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "already revoked records are not counted")

	got, err := s.Find(context.Background(), b.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.RevokedAt)

	got, err = s.Find(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RevokedAt)
}

func TestRefreshTokenStore_DeleteInactive(t *testing.T) {
	s, mr := newTestStore(t)
	now := time.Now().UTC()
	active := create(t, s, "usr_1", now, now.Add(time.Hour))
	expired := create(t, s, "usr_1", now.Add(-2*time.Hour), now.Add(-time.Minute))
	revoked := create(t, s, "usr_2", now, now.Add(time.Hour))
	_, err := s.Revoke(context.Background(), revoked.ID, now)
	require.NoError(t, err)

	n, err := s.DeleteInactive(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.Find(context.Background(), active.ID)
	assert.NoError(t, err)
	for _, id := range []string{expired.ID, revoked.ID} {
		_, err = s.Find(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrRefreshTokenNotFound)
	}

	members, err := mr.SMembers(userKey("usr_1"))
	require.NoError(t, err)
	assert.Equal(t, []string{active.ID}, members)
	pending, err := s.client.SCard(context.Background(), revokedKey).Result()
	require.NoError(t, err)
	assert.Zero(t, pending)

	n, err = s.DeleteInactive(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, n)
}
