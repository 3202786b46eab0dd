package timeutils

import "time"

// BackoffDelay returns the delay before the given retry attempt using
// exponential backoff: base * 2^(attempt-1). Attempt numbering starts at 1;
// values below 1 are treated as 1. The result is capped at max when max > 0.
func BackoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
