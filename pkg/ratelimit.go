package pkg

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Errors
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// DistributedLimiter throttles calls per key: a local token bucket per key for the fast path,
// and a Redis counter per key and window shared by every replica.
type DistributedLimiter struct {
	mu          sync.Mutex
	local       map[string]*localBucket
	lastSweep   time.Time
	now         func() time.Time
	perSecond   int
	burst       int
	redisClient *redis.Client // optional; nil keeps the limiter process-local
	prefix      string        // e.g: "ratelimit:device"
	window      time.Duration // counter expiry, e.g: 1m
	logger      *zap.Logger
}

// NewDistributedLimiter creates a limiter; if perSecond=0, it's unlimited.
func NewDistributedLimiter(redisClient *redis.Client, prefix string, perSecond, burst int, window time.Duration, logger *zap.Logger) *DistributedLimiter {
	if burst <= 0 {
		burst = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &DistributedLimiter{
		local:       make(map[string]*localBucket),
		now:         time.Now,
		perSecond:   perSecond,
		burst:       burst,
		redisClient: redisClient,
		prefix:      prefix,
		window:      window,
		logger:      logger,
	}
}

// Allow reports whether a call for key may proceed.
func (d *DistributedLimiter) Allow(ctx context.Context, key string) bool {
	if d.perSecond <= 0 {
		return true // Unlimited
	}

	// Local check first (fast path)
	if !d.limiterFor(key).Allow() {
		return false
	}
	if d.redisClient == nil {
		return true
	}

	// Distributed check via Redis atomic increment, one counter per window
	windowKey := d.prefix + ":" + key + ":" + time.Now().UTC().Truncate(d.window).Format("20060102T150405")
	pipe := d.redisClient.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, d.window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		d.logger.Error("redis rate limit error; falling back to local", zap.String("key", key), zap.Error(err))
		return true
	}

	count := incr.Val()
	if count > d.maxPerWindow() {
		d.logger.Warn("global rate limit exceeded", zap.String("key", key), zap.Int64("count", count))
		return false
	}
	return true
}

func (d *DistributedLimiter) maxPerWindow() int64 {
	return int64(d.perSecond)*int64(d.window/time.Second) + int64(d.burst)
}

type localBucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// idleAfter is how long a bucket must go unused before it is back to full burst. Dropping it
// then loses nothing: a fresh bucket behaves the same.
func (d *DistributedLimiter) idleAfter() time.Duration {
	refill := time.Duration(d.burst) * time.Second / time.Duration(d.perSecond)
	return max(refill, d.window)
}

func (d *DistributedLimiter) limiterFor(key string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if idle := d.idleAfter(); now.Sub(d.lastSweep) >= idle {
		for k, b := range d.local {
			if now.Sub(b.lastUsed) >= idle {
				delete(d.local, k)
			}
		}
		d.lastSweep = now
	}
	b, ok := d.local[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(rate.Limit(d.perSecond), d.burst)}
		d.local[key] = b
	}
	b.lastUsed = now
	return b.limiter
}
