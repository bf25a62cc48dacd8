// Package webhooks persists tenant webhook subscriptions and delivers
// signed event payloads to subscriber endpoints with retry.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/relay/internal/cache"
	"github.com/relaycore/relay/internal/kv"
	"github.com/relaycore/relay/internal/observability"
)

// Wildcard subscribes an endpoint to every event type.
const Wildcard = "*"

const subscriptionTTL = 30 * 24 * time.Hour

// RetryConfig controls per-subscription delivery retries.
type RetryConfig struct {
	MaxRetries         int  `json:"max_retries"`
	RetryDelaySeconds  int  `json:"retry_delay_seconds"`
	ExponentialBackoff bool `json:"exponential_backoff"`
}

// DefaultRetryConfig is applied to subscriptions created without one.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, RetryDelaySeconds: 5, ExponentialBackoff: true}
}

// Subscription is one tenant-registered delivery endpoint.
type Subscription struct {
	WebhookID   string      `json:"webhook_id"`
	TenantID    string      `json:"tenant_id"`
	URL         string      `json:"url"`
	Events      []string    `json:"events"`
	Secret      string      `json:"secret,omitempty"`
	Enabled     bool        `json:"enabled"`
	RetryConfig RetryConfig `json:"retry_config"`
}

// Matches reports whether the subscription wants the given event type.
func (s Subscription) Matches(eventType string) bool {
	for _, e := range s.Events {
		if e == eventType || e == Wildcard {
			return true
		}
	}
	return false
}

// Stats summarizes a tenant's registered endpoints.
type Stats struct {
	TotalWebhooks   int      `json:"total_webhooks"`
	EnabledWebhooks int      `json:"enabled_webhooks"`
	EventTypes      []string `json:"event_types"`
}

// Store keeps subscriptions in the shared substrate with a 30-day TTL.
//
// Each subscription lives under webhook:{tenant}:{id}; a per-tenant index
// list under webhooks:tenant:{tenant} names the live ids. The record and
// the index are written in two separate operations, so a crash between
// them can leave a dangling or missing index entry. List tolerates this by
// skipping index entries whose record is gone. This is a deliberate
// best-effort consistency choice, not a transactional index.
type Store struct {
	cache *cache.Cache
	log   *observability.Logger

	mu sync.Mutex // serializes index read-modify-write within this process
}

// NewStore creates a subscription store over the shared substrate.
func NewStore(store kv.Store, log *observability.Logger) *Store {
	return &Store{cache: cache.NewWithPrefix(store, ""), log: log}
}

func subscriptionKey(tenantID, webhookID string) string {
	return fmt.Sprintf("webhook:%s:%s", tenantID, webhookID)
}

func indexKey(tenantID string) string {
	return fmt.Sprintf("webhooks:tenant:%s", tenantID)
}

// Add persists a subscription and registers it in the tenant's index.
// A missing webhook id is generated; a zero retry config gets defaults.
// Returns the stored subscription.
func (s *Store) Add(ctx context.Context, sub Subscription) (Subscription, bool) {
	if sub.WebhookID == "" {
		sub.WebhookID = uuid.NewString()
	}
	if sub.RetryConfig == (RetryConfig{}) {
		sub.RetryConfig = DefaultRetryConfig()
	}

	if !s.cache.Available(ctx) {
		return sub, false
	}

	raw, err := json.Marshal(sub)
	if err != nil {
		s.log.Warn(ctx, "failed to encode subscription", "error", err)
		return sub, false
	}
	if !s.cache.Set(ctx, subscriptionKey(sub.TenantID, sub.WebhookID), string(raw), subscriptionTTL) {
		return sub, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.readIndex(ctx, sub.TenantID)
	for _, id := range ids {
		if id == sub.WebhookID {
			return sub, true
		}
	}
	ids = append(ids, sub.WebhookID)
	return sub, s.writeIndex(ctx, sub.TenantID, ids)
}

// List returns the tenant's subscriptions, skipping index entries whose
// record has expired or gone missing.
func (s *Store) List(ctx context.Context, tenantID string) []Subscription {
	if !s.cache.Available(ctx) {
		return nil
	}

	var subs []Subscription
	for _, id := range s.readIndex(ctx, tenantID) {
		raw, ok := s.cache.Get(ctx, subscriptionKey(tenantID, id))
		if !ok {
			continue
		}
		var sub Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			s.log.Warn(ctx, "failed to decode subscription", "webhook_id", id, "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	return subs
}

// Get returns one subscription by id.
func (s *Store) Get(ctx context.Context, tenantID, webhookID string) (Subscription, bool) {
	raw, ok := s.cache.Get(ctx, subscriptionKey(tenantID, webhookID))
	if !ok {
		return Subscription{}, false
	}
	var sub Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return Subscription{}, false
	}
	return sub, true
}

// Remove deletes the subscription record and drops it from the index.
func (s *Store) Remove(ctx context.Context, tenantID, webhookID string) bool {
	if !s.cache.Available(ctx) {
		return false
	}

	s.cache.Delete(ctx, subscriptionKey(tenantID, webhookID))

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.readIndex(ctx, tenantID)
	kept := ids[:0]
	for _, id := range ids {
		if id != webhookID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(ids) {
		return true
	}
	return s.writeIndex(ctx, tenantID, kept)
}

// TenantStats summarizes the tenant's registered endpoints for the
// monitoring surface.
func (s *Store) TenantStats(ctx context.Context, tenantID string) Stats {
	subs := s.List(ctx, tenantID)
	stats := Stats{TotalWebhooks: len(subs)}
	seen := map[string]struct{}{}
	for _, sub := range subs {
		if sub.Enabled {
			stats.EnabledWebhooks++
		}
		for _, e := range sub.Events {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			stats.EventTypes = append(stats.EventTypes, e)
		}
	}
	return stats
}

func (s *Store) readIndex(ctx context.Context, tenantID string) []string {
	raw, ok := s.cache.Get(ctx, indexKey(tenantID))
	if !ok {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}

func (s *Store) writeIndex(ctx context.Context, tenantID string, ids []string) bool {
	raw, err := json.Marshal(ids)
	if err != nil {
		return false
	}
	return s.cache.Set(ctx, indexKey(tenantID), string(raw), subscriptionTTL)
}
