package utils

import (
	"math/rand/v2"
	"time"
)

// CalculateExponentialBackoffWithJitter computes a jittered exponential backoff delay.
// - attempt: retry attempt number (1-based)
// - base: delay of the first retry (e.g., 100 * time.Millisecond)
// - max: upper bound of the returned delay
// Jitter is +/-12.5% of the un-jittered delay.
func CalculateExponentialBackoffWithJitter(attempt int, base time.Duration, max time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}

	delay := base
	for i := 1; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}

	if spread := int64(delay / 4); spread > 0 {
		delay += time.Duration(rand.Int64N(spread)) - delay/8
	}
	if delay > max {
		delay = max
	}
	return delay
}
