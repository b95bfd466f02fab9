package relay

import (
	"context"
	"fmt"
	"time"
)

// Retryer re-runs an operation up to a fixed attempt count, sleeping between
// attempts according to a delay function. No jitter, no delay cap beyond the
// attempt limit.
type Retryer struct {
	attempts int
	delay    func(attempt int) time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	onRetry  func(attempt int, err error)
}

// NewRetryer builds a retryer with the given attempt limit and delay function.
func NewRetryer(attempts int, delay func(attempt int) time.Duration) *Retryer {
	if attempts < 1 {
		attempts = 1
	}
	return &Retryer{
		attempts: attempts,
		delay:    delay,
		sleep:    sleepCtx,
	}
}

// OnRetry registers a callback invoked after each failed attempt that will be
// retried. Returns the retryer for chaining.
func (r *Retryer) OnRetry(fn func(attempt int, err error)) *Retryer {
	r.onRetry = fn
	return r
}

// Do runs fn until it succeeds, the attempt limit is reached, or the context
// is cancelled. The last error is wrapped with the attempt count.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == r.attempts {
			break
		}

		if r.onRetry != nil {
			r.onRetry(attempt, lastErr)
		}
		if err := r.sleep(ctx, r.delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", r.attempts, lastErr)
}

// ExponentialDelay yields unit * 2^attempt: with a one second unit the waits
// after attempts 1 and 2 are 2s and 4s.
func ExponentialDelay(unit time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		return unit * (1 << uint(attempt))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
