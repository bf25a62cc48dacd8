package kv

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// opTimeout bounds individual store operations. The store sits on the
	// synchronous request path, so it must fail fast rather than stall.
	opTimeout = 3 * time.Second

	// probeInterval is how long a liveness probe result is trusted before
	// the next operation re-pings the server.
	probeInterval = 5 * time.Second
)

// Redis implements Store on top of a Redis server.
//
// Liveness is polled with a lightweight PING and cached between operations,
// so a dead server costs one failed ping per probe interval instead of a
// timeout per request.
type Redis struct {
	client *redis.Client

	mu        sync.Mutex
	alive     bool
	lastProbe time.Time
}

// NewRedis connects to the Redis server at url (redis://host:port/db).
// A failed initial ping is not fatal: the store starts in degraded mode and
// recovers automatically once the server becomes reachable.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = opTimeout
	opts.ReadTimeout = opTimeout
	opts.WriteTimeout = opTimeout

	r := &Redis{client: redis.NewClient(opts)}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	r.alive = r.client.Ping(ctx).Err() == nil
	r.lastProbe = time.Now()
	return r, nil
}

// Available reports reachability using the cached probe result.
func (r *Redis) Available(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastProbe) < probeInterval {
		return r.alive
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	r.alive = r.client.Ping(ctx).Err() == nil
	r.lastProbe = time.Now()
	return r.alive
}

func (r *Redis) markDown() {
	r.mu.Lock()
	r.alive = false
	r.lastProbe = time.Now()
	r.mu.Unlock()
}

// Get returns the value at key.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		r.markDown()
		return "", errors.Join(ErrUnavailable, err)
	}
	return val, nil
}

// Set writes value at key with the given TTL.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.markDown()
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Delete removes the given keys.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.markDown()
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Incr atomically increments key and refreshes its TTL in one round trip.
// INCR is atomic on the server, so concurrent callers never lose updates.
func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.markDown()
		return 0, errors.Join(ErrUnavailable, err)
	}
	return incr.Val(), nil
}

// PushCapped prepends value, trims the list to max entries, and refreshes TTL.
func (r *Redis) PushCapped(ctx context.Context, key, value string, max int64, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := r.client.Pipeline()
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, max-1)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.markDown()
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Range returns list entries [start, stop], newest first.
func (r *Redis) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	vals, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		r.markDown()
		return nil, errors.Join(ErrUnavailable, err)
	}
	return vals, nil
}

// Close releases the underlying connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
