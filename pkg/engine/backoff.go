package engine

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy picks the pause before the next attempt on a busy scene.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows the pause by Factor per attempt up to Max and
// spreads it by up to ±Jitter of itself.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // fraction of the delay, 0 disables

	// Rand returns values in [0, 1). Nil uses math/rand.
	Rand func() float64
}

// DefaultBackoff waits 100ms, doubling to at most 2s, with 20% jitter.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the pause before attempt (0-based).
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	attempt = max(attempt, 0)
	delay := math.Min(float64(b.Base)*math.Pow(b.Factor, float64(attempt)), float64(b.Max))

	if b.Jitter > 0 {
		r := rand.Float64
		if b.Rand != nil {
			r = b.Rand
		}
		delay *= 1 + (2*r()-1)*b.Jitter
	}
	return time.Duration(math.Round(math.Max(delay, 0)))
}
