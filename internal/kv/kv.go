// Package kv provides the shared key/value substrate backing session memory,
// rate limiting, caching, webhook subscriptions, and telemetry.
//
// Every consumer uses its own key-namespace prefix and treats the store as
// best-effort: when the backend is unreachable, operations degrade to no-ops
// or empty results instead of propagating errors into the request path.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("kv: store unavailable")

// Store is the narrow contract the pipeline needs from the backing store.
// The production implementation is Redis; tests use the in-memory store.
type Store interface {
	// Available reports whether the store is reachable. Implementations may
	// cache the result of a liveness probe between calls.
	Available(ctx context.Context) bool

	// Get returns the string value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes value at key with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Incr atomically increments the integer at key and refreshes its TTL,
	// returning the post-increment value. The increment must be race-safe
	// under concurrent callers sharing the same key.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// PushCapped prepends value to the list at key, truncates the list to
	// the newest max entries, and refreshes the key's TTL.
	PushCapped(ctx context.Context, key, value string, max int64, ttl time.Duration) error

	// Range returns list entries [start, stop] (inclusive, newest first).
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Close releases the underlying connection.
	Close() error
}
