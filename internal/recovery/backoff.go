package recovery

import "time"

// Backoff computes exponential retry delays capped at a ceiling, used when
// a recovery action itself fails (§4.3 "Failure semantics").
type Backoff struct {
	Base    time.Duration
	Ceiling time.Duration
}

// DefaultBackoff matches the spec's example: start at 5s, cap at 5m.
func DefaultBackoff() Backoff {
	return Backoff{Base: 5 * time.Second, Ceiling: 5 * time.Minute}
}

// Delay returns the backoff for the given zero-based failure count,
// doubling each time and clamping to Ceiling.
func (b Backoff) Delay(failureCount int) time.Duration {
	if failureCount < 0 {
		failureCount = 0
	}
	d := b.Base
	for i := 0; i < failureCount; i++ {
		if d >= b.Ceiling {
			return b.Ceiling
		}
		d *= 2
	}
	if d > b.Ceiling {
		d = b.Ceiling
	}
	return d
}
