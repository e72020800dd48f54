package schedule

import (
	"testing"
	"time"
)

func TestRetryDelay(t *testing.T) {
	base := time.Hour
	max := 24 * time.Hour

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Hour},
		{1, 2 * time.Hour},
		{2, 4 * time.Hour},
		{3, 8 * time.Hour},
		{4, 16 * time.Hour},
		{5, 24 * time.Hour}, // 32h capped
		{6, 24 * time.Hour},
		{-1, time.Hour}, // negative counts clamp to base
	}

	for _, tt := range tests {
		if got := RetryDelay(tt.retryCount, base, max); got != tt.want {
			t.Errorf("RetryDelay(%d) = %s, want %s", tt.retryCount, got, tt.want)
		}
	}
}

func TestRetryDelayMonotonic(t *testing.T) {
	base := 30 * time.Minute
	max := 12 * time.Hour

	prev := time.Duration(0)
	for n := 0; n < 64; n++ {
		d := RetryDelay(n, base, max)
		if d < prev {
			t.Fatalf("RetryDelay(%d) = %s < previous %s", n, d, prev)
		}
		if d > max {
			t.Fatalf("RetryDelay(%d) = %s exceeds cap %s", n, d, max)
		}
		prev = d
	}
}
