package scheduler

import "time"

// Delay returns the exponential backoff delay before the nth retry:
// base doubled retryCount times, capped at ceiling. The loop stops at the
// ceiling rather than shifting, so large retry counts cannot overflow.
func Delay(retryCount int, base, ceiling time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}
