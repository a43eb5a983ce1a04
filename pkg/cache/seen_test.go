package cache

import (
	"context"
	"testing"
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSeenSet(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewLocalSeenSet(time.Hour)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	fresh, err := s.MarkSeen(ctx, "digest-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, _ = s.MarkSeen(ctx, "digest-1")
	assert.False(t, fresh)

	now = now.Add(time.Hour)
	fresh, _ = s.MarkSeen(ctx, "digest-1")
	assert.True(t, fresh, "expired keys count as new")

	require.NoError(t, s.Forget(ctx, "digest-1"))
	fresh, _ = s.MarkSeen(ctx, "digest-1")
	assert.True(t, fresh)
}

func TestRedisSeenSet(t *testing.T) {
	testutil.SkipWithoutDocker(t)
	addr := testutil.StartRedis(t)

	client, closeClient, err := New(context.Background(), Config{Addr: addr})
	require.NoError(t, err)
	defer closeClient()

	ctx := context.Background()
	s := NewRedisSeenSet(client, "audit:seen:test", time.Minute)

	fresh, err := s.MarkSeen(ctx, "digest-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.MarkSeen(ctx, "digest-1")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, s.Forget(ctx, "digest-1"))
	fresh, err = s.MarkSeen(ctx, "digest-1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestNew_Unreachable(t *testing.T) {
	_, _, err := New(context.Background(), Config{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestNew_SelectsDatabase(t *testing.T) {
	testutil.SkipWithoutDocker(t)
	addr := testutil.StartRedis(t)
	ctx := context.Background()

	limits, closeLimits, err := New(ctx, Config{Addr: addr, DB: 1})
	require.NoError(t, err)
	defer closeLimits()
	audit, closeAudit, err := New(ctx, Config{Addr: addr, DB: 2})
	require.NoError(t, err)
	defer closeAudit()

	require.NoError(t, limits.Set(ctx, "shared-key", "1", time.Minute).Err())
	n, err := audit.Exists(ctx, "shared-key").Result()
	require.NoError(t, err)
	assert.Zero(t, n, "keys stay in their own database")
}
