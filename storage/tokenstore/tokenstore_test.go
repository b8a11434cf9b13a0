package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setNow(t *testing.T, now time.Time) {
	orig := nowFunc
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = orig })
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	setNow(t, now)

	s := NewMemoryStore()
	require.NoError(t, s.Revoke(ctx, "live", now.Add(time.Hour)))
	require.NoError(t, s.Revoke(ctx, "dead", now.Add(-time.Minute)))

	revoked, err := s.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = s.IsRevoked(ctx, "dead")
	require.NoError(t, err)
	assert.False(t, revoked, "expired tokens are not stored")

	revoked, err = s.IsRevoked(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, revoked)

	// once the token expires it is no longer reported, and the next revoke prunes it
	setNow(t, now.Add(2*time.Hour))
	revoked, err = s.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.Revoke(ctx, "other", now.Add(3*time.Hour)))
	assert.Len(t, s.revoked, 1)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Now()
	setNow(t, now)
	s := NewRedisStore(rdb)

	require.NoError(t, s.Revoke(ctx, "abc", now.Add(30*time.Minute)))
	require.NoError(t, s.Revoke(ctx, "gone", now.Add(-time.Second)))

	revoked, err := s.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, mr.Exists(keyPrefix+"abc"))
	assert.InDelta(t, (30 * time.Minute).Seconds(), mr.TTL(keyPrefix+"abc").Seconds(), 1)

	revoked, err = s.IsRevoked(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, revoked)

	mr.FastForward(31 * time.Minute)
	revoked, err = s.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisStore_unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	_, err := NewRedisStore(rdb).IsRevoked(context.Background(), "abc")
	assert.Error(t, err)
}
