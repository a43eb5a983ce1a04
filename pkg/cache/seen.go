package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenSet remembers keys for a TTL. MarkSeen reports whether the key was new.
type SeenSet interface {
	MarkSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// RedisSeenSet is a SeenSet shared by every replica.
type RedisSeenSet struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSeenSet(client *redis.Client, prefix string, ttl time.Duration) *RedisSeenSet {
	return &RedisSeenSet{client: client, prefix: prefix, ttl: defaultDuration(ttl, 24*time.Hour)}
}

func (s *RedisSeenSet) MarkSeen(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+":"+key, 1, s.ttl).Result()
}

func (s *RedisSeenSet) Forget(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+":"+key).Err()
}

// LocalSeenSet keeps keys in process memory. Expired keys are dropped lazily.
type LocalSeenSet struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewLocalSeenSet(ttl time.Duration) *LocalSeenSet {
	return &LocalSeenSet{seen: make(map[string]time.Time), ttl: defaultDuration(ttl, 24*time.Hour), now: time.Now}
}

func (s *LocalSeenSet) MarkSeen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if exp, ok := s.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.seen[key] = now.Add(s.ttl)
	if len(s.seen) > 100_000 {
		for k, exp := range s.seen {
			if !now.Before(exp) {
				delete(s.seen, k)
			}
		}
	}
	return true, nil
}

func (s *LocalSeenSet) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
	return nil
}

func defaultDuration(v, d time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return d
}
