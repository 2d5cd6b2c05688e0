package engine

import "time"

// backoffDelay computes the bounded exponential backoff before the given
// retry attempt: base * 2^(attempt-2), capped at limit. Attempt 1 is the
// first try and has no delay.
func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	if attempt <= 1 || base <= 0 {
		return 0
	}
	d := base
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if limit > 0 && d > limit {
		return limit
	}
	return d
}
