package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"go.uber.org/zap"
)

// RetryPolicy bounds caller-driven retries of lock timeouts.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: 500 * time.Millisecond}
}

// RetryTransient runs fn and retries it with jittered exponential backoff while it fails
// with pkg.ErrLockTimeout. Any other error is returned at once.
func RetryTransient[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0 // bounded by MaxRetries

	var (
		out     T
		attempt int
	)
	op := func() error {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			out = v
			return nil
		}
		if errors.Is(err, pkg.ErrLockTimeout) {
			lockRetries.Inc()
			logger.Warn("lock_timeout_retrying",
				zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx))
	return out, err
}
