// Package backoff provides retry delay computation and context-aware
// sleeping for the webhook dispatcher and the async task runner.
package backoff

import (
	"context"
	"time"
)

// Delay returns the wait before retry attempt attempt (0-based, counted
// from the first failure). With exponential enabled the base delay doubles
// per attempt: base, 2*base, 4*base, ... Otherwise the delay is constant.
func Delay(base time.Duration, attempt int, exponential bool) time.Duration {
	if base <= 0 {
		return 0
	}
	if !exponential || attempt <= 0 {
		return base
	}
	d := base << uint(attempt)
	// Shift overflow or absurd delays clamp to an hour.
	if d <= 0 || d > time.Hour {
		return time.Hour
	}
	return d
}

// Sleep waits for d, returning early with ctx.Err() if the context is
// cancelled. A non-positive duration returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
