package utils

import "time"

// RetryPolicy is a pure retry description: a bounded attempt count and an
// exponential backoff derived from the base delay. The attempt function
// receives the 1-based attempt number so callers can vary their input per
// attempt (for example drawing a fresh cycle-count candidate) instead of
// retrying an identical write.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Backoff returns the delay applied after the given failed attempt. The base
// delay doubles per attempt, capped at MaxDelay when one is set.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// Run invokes attempt up to MaxAttempts times, sleeping the backoff between
// failures. retryable decides whether an error is worth another attempt; a
// non-retryable error is returned immediately.
func (p RetryPolicy) Run(attempt func(n int) error, retryable func(error) bool) error {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	var err error
	for n := 1; n <= max; n++ {
		err = attempt(n)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if n < max {
			time.Sleep(p.Backoff(n))
		}
	}
	return err
}
