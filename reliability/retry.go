package reliability

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig controls the primary-strategy retry loop.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, first included.
	MaxAttempts int // default: 3

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration // default: 500ms

	// BackoffMultiplier scales the delay per attempt.
	BackoffMultiplier float64 // default: 2.0

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration // default: 10s

	// Jitter adds a small random component to spread herds.
	Jitter bool // default: true
}

// DefaultRetry returns the standard retry profile.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          10 * time.Second,
		Jitter:            true,
	}
}

func (c *RetryConfig) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
}

// Delay computes the wait before attempt n (n=1 is the wait after the first
// failure). The base grows exponentially and is capped at MaxDelay, so the
// jitter-free sequence is monotonically non-decreasing. Jitter adds up to 5%
// of the capped delay on top.
func (c RetryConfig) Delay(attempt int) time.Duration {
	c.defaults()
	if attempt < 1 {
		attempt = 1
	}
	base := float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if capped := float64(c.MaxDelay); base > capped {
		base = capped
	}
	if c.Jitter {
		base += base * 0.05 * rand.Float64()
	}
	return time.Duration(base)
}
