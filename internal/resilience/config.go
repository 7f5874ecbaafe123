package resilience

import "time"

// BackoffFromConfig builds a Backoff from configuration values; zero values
// keep the defaults.
func BackoffFromConfig(attempts, initialMs, maxMs int) Backoff {
	b := DefaultBackoff()
	if attempts > 0 {
		b.Attempts = attempts
	}
	if initialMs > 0 {
		b.Initial = time.Duration(initialMs) * time.Millisecond
	}
	if maxMs > 0 {
		b.Max = time.Duration(maxMs) * time.Millisecond
	}
	return b
}
