// Package resilience retries calls to remote services that fail transiently.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff controls how many times a call is attempted and how long to wait
// between attempts.
type Backoff struct {
	// Attempts is the total number of calls, including the first. 1 disables retries.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
	// Jitter randomises each delay by ±Jitter of its value.
	Jitter float64
}

// DefaultBackoff suits interactive lookups against public HTTP APIs.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:   3,
		Initial:    250 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

func (b Backoff) normalize() Backoff {
	d := DefaultBackoff()
	if b.Attempts <= 0 {
		b.Attempts = d.Attempts
	}
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Multiplier < 1 {
		b.Multiplier = d.Multiplier
	}
	b.Jitter = math.Max(0, math.Min(b.Jitter, 1))
	return b
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.normalize()
	d := math.Min(float64(b.Initial)*math.Pow(b.Multiplier, float64(attempt)), float64(b.Max))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// Retry calls fn until it succeeds, returns an error Retryable rejects, the
// attempts run out, or ctx is done. The last error is returned unchanged.
func Retry[T any](ctx context.Context, b Backoff, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.normalize()

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !Retryable(err) || attempt+1 >= b.Attempts {
			return zero, err
		}

		wait := b.Delay(attempt)
		zap.L().Warn("resilience: retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// Do is Retry for calls without a result.
func Do(ctx context.Context, b Backoff, op string, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, b, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
