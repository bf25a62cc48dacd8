package webhooks

import (
	"context"
	"io"
	"testing"

	"github.com/relaycore/relay/internal/kv"
	"github.com/relaycore/relay/internal/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

func TestAddListRemove(t *testing.T) {
	store := NewStore(kv.NewMemory(), testLogger())
	ctx := context.Background()

	first, ok := store.Add(ctx, Subscription{
		TenantID: "acme",
		URL:      "https://hooks.acme.test/a",
		Events:   []string{EventMessageProcessed},
		Enabled:  true,
	})
	if !ok {
		t.Fatal("add failed")
	}
	second, ok := store.Add(ctx, Subscription{
		TenantID: "acme",
		URL:      "https://hooks.acme.test/b",
		Events:   []string{Wildcard},
		Enabled:  true,
	})
	if !ok {
		t.Fatal("add failed")
	}

	subs := store.List(ctx, "acme")
	if len(subs) != 2 {
		t.Fatalf("list = %d subscriptions, want 2", len(subs))
	}

	if !store.Remove(ctx, "acme", first.WebhookID) {
		t.Fatal("remove failed")
	}
	subs = store.List(ctx, "acme")
	if len(subs) != 1 || subs[0].WebhookID != second.WebhookID {
		t.Fatalf("list after remove = %+v", subs)
	}
	if _, found := store.Get(ctx, "acme", first.WebhookID); found {
		t.Error("removed subscription still readable")
	}
}

func TestAddGeneratesIDAndDefaults(t *testing.T) {
	store := NewStore(kv.NewMemory(), testLogger())

	sub, ok := store.Add(context.Background(), Subscription{
		TenantID: "acme",
		URL:      "https://hooks.acme.test",
		Events:   []string{EventErrorOccurred},
		Enabled:  true,
	})
	if !ok {
		t.Fatal("add failed")
	}
	if sub.WebhookID == "" {
		t.Error("webhook id not generated")
	}
	want := DefaultRetryConfig()
	if sub.RetryConfig != want {
		t.Errorf("retry config = %+v, want %+v", sub.RetryConfig, want)
	}
}

func TestAddIsIdempotentInIndex(t *testing.T) {
	store := NewStore(kv.NewMemory(), testLogger())
	ctx := context.Background()

	sub, _ := store.Add(ctx, Subscription{TenantID: "acme", URL: "https://a", Events: []string{Wildcard}, Enabled: true})
	store.Add(ctx, sub) // re-register the same id

	if subs := store.List(ctx, "acme"); len(subs) != 1 {
		t.Fatalf("list = %d subscriptions, want 1", len(subs))
	}
}

func TestListSkipsDanglingIndexEntries(t *testing.T) {
	backend := kv.NewMemory()
	store := NewStore(backend, testLogger())
	ctx := context.Background()

	kept, _ := store.Add(ctx, Subscription{TenantID: "acme", URL: "https://a", Events: []string{Wildcard}, Enabled: true})
	dangling, _ := store.Add(ctx, Subscription{TenantID: "acme", URL: "https://b", Events: []string{Wildcard}, Enabled: true})

	// Simulate the record expiring while the index entry survives.
	if err := backend.Delete(ctx, "webhook:acme:"+dangling.WebhookID); err != nil {
		t.Fatal(err)
	}

	subs := store.List(ctx, "acme")
	if len(subs) != 1 || subs[0].WebhookID != kept.WebhookID {
		t.Fatalf("list = %+v", subs)
	}
}

func TestTenantStats(t *testing.T) {
	store := NewStore(kv.NewMemory(), testLogger())
	ctx := context.Background()

	store.Add(ctx, Subscription{TenantID: "acme", URL: "https://a", Events: []string{EventMessageProcessed, EventErrorOccurred}, Enabled: true})
	store.Add(ctx, Subscription{TenantID: "acme", URL: "https://b", Events: []string{EventMessageProcessed}, Enabled: false})

	stats := store.TenantStats(ctx, "acme")
	if stats.TotalWebhooks != 2 || stats.EnabledWebhooks != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.EventTypes) != 2 {
		t.Errorf("event types = %v", stats.EventTypes)
	}
}

func TestStoreDegraded(t *testing.T) {
	backend := kv.NewMemory()
	backend.SetDown(true)
	store := NewStore(backend, testLogger())
	ctx := context.Background()

	if _, ok := store.Add(ctx, Subscription{TenantID: "acme", URL: "https://a", Events: []string{Wildcard}}); ok {
		t.Error("add should fail while degraded")
	}
	if subs := store.List(ctx, "acme"); subs != nil {
		t.Errorf("list while degraded = %v", subs)
	}
	if store.Remove(ctx, "acme", "some-id") {
		t.Error("remove should fail while degraded")
	}
}

func TestMatches(t *testing.T) {
	sub := Subscription{Events: []string{EventMessageProcessed}}
	if !sub.Matches(EventMessageProcessed) || sub.Matches(EventErrorOccurred) {
		t.Error("exact match broken")
	}
	wild := Subscription{Events: []string{Wildcard}}
	if !wild.Matches(EventErrorOccurred) {
		t.Error("wildcard match broken")
	}
}
