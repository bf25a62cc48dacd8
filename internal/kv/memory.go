package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store used for tests and single-node development.
// TTLs are honored lazily: expired entries are dropped on access.
type Memory struct {
	mu    sync.Mutex
	vals  map[string]entry
	lists map[string]listEntry
	down  bool

	// now is swappable for expiry tests.
	now func() time.Time
}

type entry struct {
	value     string
	expiresAt time.Time
}

type listEntry struct {
	items     []string
	expiresAt time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		vals:  make(map[string]entry),
		lists: make(map[string]listEntry),
		now:   time.Now,
	}
}

// SetDown toggles simulated unavailability; while down every operation
// behaves like a dead Redis server.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

// Available reports the simulated liveness state.
func (m *Memory) Available(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.down
}

func (m *Memory) expired(t time.Time) bool {
	return !t.IsZero() && m.now().After(t)
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// Get returns the value at key.
func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return "", ErrUnavailable
	}
	e, ok := m.vals[key]
	if !ok || m.expired(e.expiresAt) {
		delete(m.vals, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

// Set writes value at key.
func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return ErrUnavailable
	}
	m.vals[key] = entry{value: value, expiresAt: m.deadline(ttl)}
	return nil
}

// Delete removes the given keys from both value and list spaces.
func (m *Memory) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return ErrUnavailable
	}
	for _, key := range keys {
		delete(m.vals, key)
		delete(m.lists, key)
	}
	return nil
}

// Incr increments the integer at key under the store lock.
func (m *Memory) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return 0, ErrUnavailable
	}
	e, ok := m.vals[key]
	if !ok || m.expired(e.expiresAt) {
		e = entry{value: "0"}
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	m.vals[key] = entry{value: strconv.FormatInt(n, 10), expiresAt: m.deadline(ttl)}
	return n, nil
}

// PushCapped prepends value to the list at key and truncates to max entries.
func (m *Memory) PushCapped(ctx context.Context, key, value string, max int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return ErrUnavailable
	}
	l, ok := m.lists[key]
	if !ok || m.expired(l.expiresAt) {
		l = listEntry{}
	}
	l.items = append([]string{value}, l.items...)
	if int64(len(l.items)) > max {
		l.items = l.items[:max]
	}
	l.expiresAt = m.deadline(ttl)
	m.lists[key] = l
	return nil
}

// Range returns list entries [start, stop], newest first.
func (m *Memory) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, ErrUnavailable
	}
	l, ok := m.lists[key]
	if !ok || m.expired(l.expiresAt) {
		delete(m.lists, key)
		return nil, nil
	}
	n := int64(len(l.items))
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l.items[start:stop+1])
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
