package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the next delay duration
	NextDelay(attempt int) time.Duration
	// Reset resets the backoff strategy to initial state
	Reset()
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	// BaseDelay is the initial delay duration
	BaseDelay time.Duration
	// MaxDelay is the maximum delay duration
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases
	Multiplier float64
	// JitterFactor adds randomness to avoid thundering herd (0.0 to 1.0)
	JitterFactor float64

	attempts int
}

// DefaultExponentialBackoff returns a backoff with sensible defaults
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))

	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	// Add jitter to avoid thundering herd
	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		randomJitter := (rand.Float64() * 2 * jitter) - jitter
		delay += randomJitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Reset resets the backoff to initial state
func (eb *ExponentialBackoff) Reset() {
	eb.attempts = 0
}

// LinearBackoff implements linear backoff strategy
type LinearBackoff struct {
	// BaseDelay is the fixed delay between attempts
	BaseDelay time.Duration
	// MaxDelay is the maximum delay duration
	MaxDelay time.Duration
	// Increment is the amount to increase delay by each attempt
	Increment time.Duration
}

// NextDelay calculates the next linear delay
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := lb.BaseDelay + time.Duration(attempt-1)*lb.Increment

	if lb.MaxDelay > 0 && delay > lb.MaxDelay {
		delay = lb.MaxDelay
	}

	return delay
}

// Reset resets the backoff to initial state
func (lb *LinearBackoff) Reset() {}

// ConstantBackoff waits the same duration between every attempt
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns the constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Reset resets the backoff to initial state
func (cb *ConstantBackoff) Reset() {}

// Wait sleeps for the given duration, returning early if the context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
