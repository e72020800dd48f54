package schedule

import (
	"time"
)

// RetryDelay returns the wait before the next attempt after retryCount
// failures: min(2^retryCount * base, max). The delay is monotonically
// non-decreasing in retryCount and never exceeds max.
func RetryDelay(retryCount int, base, max time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		// Doubling a Duration can overflow into negatives on absurd counts.
		if delay >= max || delay < 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
