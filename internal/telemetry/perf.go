package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/relaycore/relay/internal/cache"
	"github.com/relaycore/relay/internal/kv"
	"github.com/relaycore/relay/internal/observability"
)

const (
	perfRetention  = time.Hour
	maxPerfSamples = 100
)

// Performance stats availability states.
const (
	PerfAvailable   = "available"
	PerfNoData      = "no_data"
	PerfUnavailable = "unavailable"
)

// perfMetrics is the stored per-endpoint accumulator: running aggregates
// plus a capped ring of raw samples for percentile computation.
type perfMetrics struct {
	Count       int       `json:"count"`
	TotalMs     float64   `json:"total_ms"`
	MinMs       float64   `json:"min_ms"`
	MaxMs       float64   `json:"max_ms"`
	RecentTimes []float64 `json:"recent_times"`
}

// PerfStats is the read-time projection of an endpoint's samples.
type PerfStats struct {
	Status         string  `json:"status"`
	TotalRequests  int     `json:"total_requests,omitempty"`
	AvgMs          float64 `json:"avg_response_time_ms,omitempty"`
	MinMs          float64 `json:"min_response_time_ms,omitempty"`
	MaxMs          float64 `json:"max_response_time_ms,omitempty"`
	P50Ms          float64 `json:"p50_response_time_ms,omitempty"`
	P95Ms          float64 `json:"p95_response_time_ms,omitempty"`
	RecentRequests int     `json:"recent_requests,omitempty"`
}

// PerfMonitor records endpoint latencies into the shared substrate.
type PerfMonitor struct {
	cache *cache.Cache
	log   *observability.Logger

	mu sync.Mutex
}

// NewPerfMonitor creates a monitor over the shared substrate.
func NewPerfMonitor(store kv.Store, log *observability.Logger) *PerfMonitor {
	return &PerfMonitor{cache: cache.NewWithPrefix(store, ""), log: log}
}

func perfKey(endpoint string) string {
	return fmt.Sprintf("perf:%s:response_times", endpoint)
}

// Record adds one latency sample for an endpoint. A down substrate drops
// the sample silently.
func (m *PerfMonitor) Record(ctx context.Context, endpoint string, durationMs float64) {
	if !m.cache.Available(ctx) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := perfMetrics{MinMs: math.Inf(1)}
	if raw, ok := m.cache.Get(ctx, perfKey(endpoint)); ok {
		if err := json.Unmarshal([]byte(raw), &metrics); err != nil {
			metrics = perfMetrics{MinMs: math.Inf(1)}
		}
	}

	metrics.Count++
	metrics.TotalMs += durationMs
	metrics.MinMs = math.Min(metrics.MinMs, durationMs)
	metrics.MaxMs = math.Max(metrics.MaxMs, durationMs)
	metrics.RecentTimes = append(metrics.RecentTimes, durationMs)
	if len(metrics.RecentTimes) > maxPerfSamples {
		metrics.RecentTimes = metrics.RecentTimes[len(metrics.RecentTimes)-maxPerfSamples:]
	}

	raw, err := json.Marshal(metrics)
	if err != nil {
		m.log.Warn(ctx, "failed to encode perf metrics", "error", err)
		return
	}
	m.cache.Set(ctx, perfKey(endpoint), string(raw), perfRetention)
}

// Stats computes the endpoint's latency summary. Percentiles come from
// sorting the raw sample ring at read time; the index is floor(fraction×N)
// clamped to the last valid sample.
func (m *PerfMonitor) Stats(ctx context.Context, endpoint string) PerfStats {
	if !m.cache.Available(ctx) {
		return PerfStats{Status: PerfUnavailable}
	}

	raw, ok := m.cache.Get(ctx, perfKey(endpoint))
	if !ok {
		return PerfStats{Status: PerfNoData}
	}
	var metrics perfMetrics
	if err := json.Unmarshal([]byte(raw), &metrics); err != nil || metrics.Count == 0 {
		return PerfStats{Status: PerfNoData}
	}

	sorted := append([]float64(nil), metrics.RecentTimes...)
	sort.Float64s(sorted)
	avg := metrics.TotalMs / float64(metrics.Count)
	p50, p95 := avg, avg
	if len(sorted) > 0 {
		p50 = sorted[len(sorted)/2]
		p95 = sorted[min(int(float64(len(sorted))*0.95), len(sorted)-1)]
	}

	return PerfStats{
		Status:         PerfAvailable,
		TotalRequests:  metrics.Count,
		AvgMs:          round2(avg),
		MinMs:          round2(metrics.MinMs),
		MaxMs:          round2(metrics.MaxMs),
		P50Ms:          round2(p50),
		P95Ms:          round2(p95),
		RecentRequests: len(metrics.RecentTimes),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
