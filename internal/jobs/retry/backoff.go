package retry

import (
	"math/rand"
	"time"
)

const (
	// DefaultMaxRetries is max_retries from spec §4.7.
	DefaultMaxRetries = 3
	baseDelay         = 5 * time.Second
	maxDelay          = 300 * time.Second
)

// BackoffDelay computes delay = min(base*2^retryCount, max_delay).
func BackoffDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 20 {
		// guard against overflow before the min() clamp would kick in
		return maxDelay
	}
	d := baseDelay * time.Duration(uint64(1)<<uint(retryCount))
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

// jitterFrac spreads concurrent retries of the same task type across a
// window instead of a thundering herd on the exact backoff boundary.
const jitterFrac = 0.20

// JitteredBackoffDelay applies +/-20% jitter around BackoffDelay. The
// Executor uses this form and logs the jittered value; BackoffDelay's bare
// value is what tests use for deterministic assertions.
func JitteredBackoffDelay(retryCount int) time.Duration {
	d := float64(BackoffDelay(retryCount))
	delta := d * jitterFrac
	low, high := d-delta, d+delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}
