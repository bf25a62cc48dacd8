// Package cache provides a generic TTL key/value cache on the shared kv
// substrate. It also serves as the storage layer for telemetry and webhook
// subscriptions, which layer their own key conventions on top.
package cache

import (
	"context"
	"time"

	"github.com/relaycore/relay/internal/kv"
)

// DefaultTTL is applied when a caller passes a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// Cache is a namespaced TTL cache. All keys are stored under the given
// prefix so consumers sharing the substrate never collide.
type Cache struct {
	store  kv.Store
	prefix string
}

// New creates a cache using the "cache:" namespace.
func New(store kv.Store) *Cache {
	return NewWithPrefix(store, "cache:")
}

// NewWithPrefix creates a cache under an explicit key prefix.
func NewWithPrefix(store kv.Store, prefix string) *Cache {
	return &Cache{store: store, prefix: prefix}
}

// Available reports whether the backing store is reachable.
func (c *Cache) Available(ctx context.Context) bool {
	return c.store.Available(ctx)
}

// Get returns the cached value, or ok=false on a miss or when the store is
// unreachable. Callers must treat the cache as advisory.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		return "", false
	}
	return val, true
}

// Set stores value under key for ttl. Returns false when the store is down.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return c.store.Set(ctx, c.prefix+key, value, ttl) == nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	return c.store.Delete(ctx, c.prefix+key) == nil
}
