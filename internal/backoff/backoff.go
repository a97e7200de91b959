// Package backoff computes capped exponential reconnect delays.
package backoff

import (
	"math"
	"time"
)

// Delay returns the backoff delay for the given retry attempt:
// base * decay^attempt, capped at limit. Attempt 0 is the first retry and
// yields base.
func Delay(base, limit time.Duration, decay float64, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt <= 0 || decay <= 1 {
		if limit > 0 && base > limit {
			return limit
		}
		return base
	}

	d := float64(base) * math.Pow(decay, float64(attempt))
	if limit > 0 && d >= float64(limit) {
		return limit
	}
	if d >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
