package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/relaycore/relay/internal/kv"
	"github.com/relaycore/relay/internal/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

func TestCaptureAndGet(t *testing.T) {
	tracker := NewErrorTracker(kv.NewMemory(), testLogger())
	ctx := context.Background()

	id := tracker.Capture(ctx, errors.New("upstream timed out"), map[string]any{"endpoint": "/message"}, SeverityError)
	if !strings.HasPrefix(id, "error_") {
		t.Fatalf("error id = %q", id)
	}

	record, ok := tracker.Get(ctx, id)
	if !ok {
		t.Fatal("record not found")
	}
	if record.Message != "upstream timed out" || record.Severity != SeverityError {
		t.Errorf("record = %+v", record)
	}
	if record.Context["endpoint"] != "/message" {
		t.Errorf("context = %v", record.Context)
	}
	if record.Stack == "" {
		t.Error("stack not captured")
	}

	recent := tracker.Recent(ctx, 10)
	if len(recent) != 1 || recent[0].ErrorID != id {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestRecentListIsCapped(t *testing.T) {
	tracker := NewErrorTracker(kv.NewMemory(), testLogger())
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		tracker.Capture(ctx, fmt.Errorf("failure %d", i), nil, SeverityWarning)
	}

	recent := tracker.Recent(ctx, 200)
	if len(recent) != 100 {
		t.Fatalf("recent length = %d, want 100", len(recent))
	}
}

func TestErrorStats(t *testing.T) {
	tracker := NewErrorTracker(kv.NewMemory(), testLogger())
	ctx := context.Background()

	// Two old entries, three recent ones.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return base.Add(-30 * time.Hour) }
	tracker.Capture(ctx, errors.New("stale"), nil, SeverityError)
	tracker.now = func() time.Time { return base.Add(-25 * time.Hour) }
	tracker.Capture(ctx, errors.New("stale"), nil, SeverityCritical)
	tracker.now = func() time.Time { return base }
	tracker.Capture(ctx, errors.New("fresh"), nil, SeverityError)
	tracker.Capture(ctx, errors.New("fresh"), nil, SeverityError)
	tracker.Capture(ctx, errors.New("fresh"), nil, SeverityWarning)

	stats := tracker.Stats(ctx)
	if stats.TotalErrors != 5 {
		t.Errorf("total = %d, want 5", stats.TotalErrors)
	}
	if stats.BySeverity[SeverityError] != 3 || stats.BySeverity[SeverityCritical] != 1 || stats.BySeverity[SeverityWarning] != 1 {
		t.Errorf("by severity = %v", stats.BySeverity)
	}
	if stats.Last24h != 3 {
		t.Errorf("last 24h = %d, want 3", stats.Last24h)
	}
	if stats.ErrorRate != 0.13 { // round(3/24, 2)
		t.Errorf("error rate = %v", stats.ErrorRate)
	}
	if stats.LastError == nil || stats.LastError.Severity != SeverityWarning {
		t.Errorf("last error = %+v", stats.LastError)
	}
}

func TestStatsEmpty(t *testing.T) {
	tracker := NewErrorTracker(kv.NewMemory(), testLogger())

	stats := tracker.Stats(context.Background())
	if stats.TotalErrors != 0 || stats.Last24h != 0 || stats.ErrorRate != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPrune(t *testing.T) {
	tracker := NewErrorTracker(kv.NewMemory(), testLogger())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return base.Add(-30 * time.Hour) }
	tracker.Capture(ctx, errors.New("stale"), nil, SeverityError)
	tracker.now = func() time.Time { return base }
	tracker.Capture(ctx, errors.New("fresh"), nil, SeverityError)

	if !tracker.Prune(ctx, 24*time.Hour) {
		t.Fatal("prune failed")
	}
	recent := tracker.Recent(ctx, 10)
	if len(recent) != 1 {
		t.Fatalf("recent after prune = %d entries", len(recent))
	}
}

func TestCaptureDegraded(t *testing.T) {
	backend := kv.NewMemory()
	backend.SetDown(true)
	tracker := NewErrorTracker(backend, testLogger())
	ctx := context.Background()

	id := tracker.Capture(ctx, errors.New("boom"), nil, SeverityError)
	if id == "" {
		t.Fatal("capture should still return an id")
	}
	if recent := tracker.Recent(ctx, 10); len(recent) != 0 {
		t.Errorf("recent while degraded = %v", recent)
	}
}

func TestPerfStats(t *testing.T) {
	monitor := NewPerfMonitor(kv.NewMemory(), testLogger())
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		monitor.Record(ctx, "/message", float64(i*10))
	}

	stats := monitor.Stats(ctx, "/message")
	if stats.Status != PerfAvailable {
		t.Fatalf("status = %q", stats.Status)
	}
	if stats.TotalRequests != 10 || stats.RecentRequests != 10 {
		t.Errorf("counts = %d/%d", stats.TotalRequests, stats.RecentRequests)
	}
	if stats.AvgMs != 55 || stats.MinMs != 10 || stats.MaxMs != 100 {
		t.Errorf("aggregates = avg %v min %v max %v", stats.AvgMs, stats.MinMs, stats.MaxMs)
	}
	if stats.P50Ms != 60 {
		t.Errorf("p50 = %v, want 60", stats.P50Ms)
	}
	if stats.P95Ms != 100 { // index floor(10*0.95)=9, the last sample
		t.Errorf("p95 = %v, want 100", stats.P95Ms)
	}
}

func TestPerfRingIsCapped(t *testing.T) {
	monitor := NewPerfMonitor(kv.NewMemory(), testLogger())
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		monitor.Record(ctx, "/message", 5)
	}

	stats := monitor.Stats(ctx, "/message")
	if stats.TotalRequests != 120 {
		t.Errorf("total = %d, want 120", stats.TotalRequests)
	}
	if stats.RecentRequests != 100 {
		t.Errorf("ring = %d, want 100", stats.RecentRequests)
	}
}

func TestPerfStatsStates(t *testing.T) {
	backend := kv.NewMemory()
	monitor := NewPerfMonitor(backend, testLogger())
	ctx := context.Background()

	if got := monitor.Stats(ctx, "/never-hit").Status; got != PerfNoData {
		t.Errorf("status = %q, want %q", got, PerfNoData)
	}
	backend.SetDown(true)
	if got := monitor.Stats(ctx, "/never-hit").Status; got != PerfUnavailable {
		t.Errorf("status = %q, want %q", got, PerfUnavailable)
	}
}
