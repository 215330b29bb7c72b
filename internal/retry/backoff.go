package retry

import (
	"math/rand"
	"time"
)

// Backoff computes delays that grow by 4x per attempt. Webhook consumers
// typically need minutes, not seconds, to recover, hence the aggressive
// multiplier.
type Backoff struct {
	Base time.Duration // delay for the first retry
	Max  time.Duration // clamp
}

// Delay returns the queue-level reschedule delay after the n-th attempt
// (1-based): base * 4^(n-1), clamped to Max. Monotonically non-decreasing
// in n.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = time.Minute
	}
	max := b.Max
	if max <= 0 {
		max = time.Hour
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 4
		if d >= max || d < 0 { // overflow guard
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// JitteredDelay is the delivery-client variant: the same exponential
// curve with +/-25% jitter so subscriber retries do not synchronize.
// rng may be nil, in which case the shared lock-protected package source
// is used; concurrent callers must not end up with identical jitter.
func (b Backoff) JitteredDelay(attempt int, rng *rand.Rand) time.Duration {
	d := b.Delay(attempt)
	var f float64
	if rng != nil {
		f = rng.Float64()
	} else {
		f = rand.Float64()
	}
	// uniform in [-25%, +25%]
	jitter := time.Duration((f - 0.5) * 0.5 * float64(d))
	return d + jitter
}
