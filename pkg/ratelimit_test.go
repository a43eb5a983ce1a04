package pkg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDistributedLimiter_LocalBurst(t *testing.T) {
	l := NewDistributedLimiter(nil, "ratelimit:test", 1, 3, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := range 3 {
		assert.True(t, l.Allow(ctx, "device-a"), "call %d within burst", i)
	}
	assert.False(t, l.Allow(ctx, "device-a"))
	assert.True(t, l.Allow(ctx, "device-b"), "keys are limited independently")
}

func TestDistributedLimiter_Unlimited(t *testing.T) {
	l := NewDistributedLimiter(nil, "ratelimit:test", 0, 0, 0, zap.NewNop())
	for range 100 {
		assert.True(t, l.Allow(context.Background(), "k"))
	}
}

func TestDistributedLimiter_EvictsIdleKeys(t *testing.T) {
	l := NewDistributedLimiter(nil, "ratelimit:test", 1, 3, time.Minute, zap.NewNop())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Allow(ctx, "device-a")
	l.Allow(ctx, "device-b")

	now = now.Add(30 * time.Second)
	l.Allow(ctx, "device-b")

	now = now.Add(31 * time.Second)
	l.Allow(ctx, "device-c")

	keys := make([]string, 0, len(l.local))
	for k := range l.local {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"device-b", "device-c"}, keys)
}
