// Package ratelimit implements a fixed-window request throttle on the
// shared kv substrate.
//
// The window index is floor(unix_time / window); the counter key is
// rate_limit:{identifier}:{index} with a TTL of one window length, so
// counters clean themselves up as windows roll over. The increment is a
// single atomic server-side operation, never a read-modify-write in
// application code.
//
// The limiter fails open: when the store is unreachable requests are
// allowed and the info reports unavailable status. Throughput is never
// blocked by infrastructure failure of the limiter itself.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/relaycore/relay/internal/kv"
)

const keyPrefix = "rate_limit:"

// Info reports the state of a rate-limit check.
type Info struct {
	Limited      bool  `json:"rate_limited"`
	Limit        int   `json:"limit"`
	Window       int   `json:"window"`
	CurrentCount int64 `json:"current_count"`
	Remaining    int64 `json:"remaining"`
	// ResetTime is the unix time the next window begins.
	ResetTime int64 `json:"reset_time"`
	// Available is false when the limiter's store was unreachable and the
	// request was allowed by fail-open policy.
	Available bool `json:"available"`
}

// RetryAfter returns the seconds until the next window begins, never
// negative.
func (i Info) RetryAfter(now time.Time) int64 {
	after := i.ResetTime - now.Unix()
	if after < 0 {
		return 0
	}
	return after
}

// LimitExceededError is returned by Enforce when a caller is over its
// window budget. It carries the machine-readable retry hint surfaced in
// HTTP 429 responses.
type LimitExceededError struct {
	RetryAfter int64
	Limit      int
	Window     int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %ds, retry in %ds",
		e.Limit, e.Window, e.RetryAfter)
}

// Limiter is a fixed-window rate limiter.
type Limiter struct {
	store kv.Store

	// now is swappable for deterministic window tests.
	now func() time.Time
}

// New creates a limiter on the given store.
func New(store kv.Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Check atomically counts a request for identifier against limit per
// window seconds and reports whether it is allowed.
func (l *Limiter) Check(ctx context.Context, identifier string, limit, window int) (bool, Info) {
	now := l.now().Unix()
	index := now / int64(window)
	info := Info{
		Limit:     limit,
		Window:    window,
		ResetTime: (index + 1) * int64(window),
		Available: true,
	}

	key := fmt.Sprintf("%s%s:%d", keyPrefix, identifier, index)
	count, err := l.store.Incr(ctx, key, time.Duration(window)*time.Second)
	if err != nil {
		// Fail open.
		info.Available = false
		return true, info
	}

	info.CurrentCount = count
	if count > int64(limit) {
		info.Limited = true
		info.Remaining = 0
		return false, info
	}
	info.Remaining = int64(limit) - count
	return true, info
}

// Enforce is the terminal-error wrapper around Check: a rejection becomes
// a LimitExceededError carrying the retry-after hint.
func (l *Limiter) Enforce(ctx context.Context, identifier string, limit, window int) (Info, error) {
	allowed, info := l.Check(ctx, identifier, limit, window)
	if allowed {
		return info, nil
	}
	return info, &LimitExceededError{
		RetryAfter: info.RetryAfter(l.now()),
		Limit:      limit,
		Window:     window,
	}
}
