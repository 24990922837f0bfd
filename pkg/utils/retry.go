package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff describes a bounded exponential retry schedule.
type Backoff struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoff is used for best-effort side effects such as event publishing.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
	}
}

// Delay returns the wait before attempt+1, capped at MaxDelay.
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= b.Multiplier
		if b.MaxDelay > 0 && d >= float64(b.MaxDelay) {
			return b.MaxDelay
		}
	}
	return time.Duration(d)
}

// Retry runs fn until it succeeds, the attempts run out or ctx is done.
// Context errors returned by fn are not retried.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	attempts := b.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}

		if attempt < attempts-1 {
			timer := time.NewTimer(b.Delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}
