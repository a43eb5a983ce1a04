package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the Redis connection as the services read it from APP_REDIS_*.
// Both services share one Redis: ledger-api for device rate limits, audit-worker for
// redelivery dedupe. Give them different DB indexes to keep their keys apart.
type Config struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

const (
	dialTimeout = 3 * time.Second
	ioTimeout   = 2 * time.Second
)

// New returns a client that has answered PING. The returned func closes it.
func New(ctx context.Context, cfg Config) (*redis.Client, func(), error) {
	opts := &redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     dialTimeout,
		ReadTimeout:     ioTimeout,
		WriteTimeout:    ioTimeout,
		PoolSize:        10,
		MinIdleConns:    2,
		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
	}
	return client, func() { _ = client.Close() }, nil
}
