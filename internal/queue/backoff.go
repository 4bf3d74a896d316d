package queue

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns base * 2^(attempt-1) capped at max, with +/-20% jitter.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if max > 0 && (d > max || d <= 0) {
		d = max
	}

	j := int64(float64(d) * 0.2)
	if j <= 0 {
		return d
	}
	return d - time.Duration(j) + time.Duration(rand.Int64N(2*j+1))
}
