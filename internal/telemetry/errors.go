// Package telemetry keeps advisory error and latency records in the shared
// cache substrate. Everything here is best-effort: when the substrate is
// unreachable the trackers degrade to empty results instead of failing the
// request that triggered them.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/relaycore/relay/internal/cache"
	"github.com/relaycore/relay/internal/kv"
	"github.com/relaycore/relay/internal/observability"
)

// Error severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

const (
	errorRetention  = 24 * time.Hour
	maxRecentErrors = 100
	recentErrorsKey = "recent_errors"
)

// ErrorRecord is the full detail stored per captured error.
type ErrorRecord struct {
	ErrorID   string         `json:"error_id"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  string         `json:"severity"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"error_message"`
	Stack     string         `json:"stack"`
	Context   map[string]any `json:"context,omitempty"`
}

// ErrorEntry is the compact form kept in the rolling recent-errors list.
type ErrorEntry struct {
	ErrorID   string    `json:"error_id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
}

// ErrorStats is derived from the rolling list at read time; none of the
// counts are maintained incrementally.
type ErrorStats struct {
	TotalErrors int            `json:"total_errors"`
	BySeverity  map[string]int `json:"by_severity"`
	Last24h     int            `json:"last_24h"`
	ErrorRate   float64        `json:"error_rate"`
	LastError   *ErrorEntry    `json:"last_error,omitempty"`
}

// ErrorTracker appends captured errors to a capped rolling log with a
// 24-hour retention window.
type ErrorTracker struct {
	cache *cache.Cache
	log   *observability.Logger
	now   func() time.Time

	mu sync.Mutex // serializes read-modify-write of the rolling list
}

// NewErrorTracker creates a tracker over the shared substrate.
func NewErrorTracker(store kv.Store, log *observability.Logger) *ErrorTracker {
	return &ErrorTracker{
		cache: cache.NewWithPrefix(store, ""),
		log:   log,
		now:   time.Now,
	}
}

// Capture records an error with its context and returns the error id. The
// id is returned even when the substrate is down so callers can still log
// a correlation handle.
func (t *ErrorTracker) Capture(ctx context.Context, err error, errCtx map[string]any, severity string) string {
	now := t.now().UTC()
	id := fmt.Sprintf("error_%d", now.UnixNano())

	if !t.cache.Available(ctx) {
		return id
	}

	record := ErrorRecord{
		ErrorID:   id,
		Timestamp: now,
		Severity:  severity,
		ErrorType: fmt.Sprintf("%T", err),
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Context:   errCtx,
	}
	raw, marshalErr := json.Marshal(record)
	if marshalErr != nil {
		t.log.Warn(ctx, "failed to encode error record", "error", marshalErr)
		return id
	}
	t.cache.Set(ctx, "error:"+id, string(raw), errorRetention)

	t.mu.Lock()
	defer t.mu.Unlock()
	entries := t.readRecent(ctx)
	entries = append(entries, ErrorEntry{ErrorID: id, Timestamp: now, Severity: severity})
	if len(entries) > maxRecentErrors {
		entries = entries[len(entries)-maxRecentErrors:]
	}
	t.writeRecent(ctx, entries)

	return id
}

// Get returns the full record for an error id, or false when the record
// expired or the substrate is down.
func (t *ErrorTracker) Get(ctx context.Context, errorID string) (ErrorRecord, bool) {
	raw, ok := t.cache.Get(ctx, "error:"+errorID)
	if !ok {
		return ErrorRecord{}, false
	}
	var record ErrorRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return ErrorRecord{}, false
	}
	return record, true
}

// Recent returns up to limit of the newest entries, oldest first.
func (t *ErrorTracker) Recent(ctx context.Context, limit int) []ErrorEntry {
	if limit <= 0 {
		limit = 50
	}
	entries := t.readRecent(ctx)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

// Stats derives counts by severity, a trailing-24h count, and an
// errors-per-hour rate from the rolling list.
func (t *ErrorTracker) Stats(ctx context.Context) ErrorStats {
	entries := t.Recent(ctx, maxRecentErrors)
	stats := ErrorStats{BySeverity: map[string]int{}}
	if len(entries) == 0 {
		return stats
	}

	cutoff := t.now().UTC().Add(-24 * time.Hour)
	for _, e := range entries {
		stats.BySeverity[e.Severity]++
		if e.Timestamp.After(cutoff) {
			stats.Last24h++
		}
	}
	stats.TotalErrors = len(entries)
	stats.ErrorRate = round2(float64(stats.Last24h) / 24.0)
	last := entries[len(entries)-1]
	stats.LastError = &last
	return stats
}

// Prune drops entries older than the given age from the rolling list. Used
// by scheduled maintenance; detail records expire on their own TTL.
func (t *ErrorTracker) Prune(ctx context.Context, age time.Duration) bool {
	if !t.cache.Available(ctx) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	entries := t.readRecent(ctx)
	cutoff := t.now().UTC().Add(-age)
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return true
	}
	return t.writeRecent(ctx, kept)
}

func (t *ErrorTracker) readRecent(ctx context.Context) []ErrorEntry {
	raw, ok := t.cache.Get(ctx, recentErrorsKey)
	if !ok {
		return nil
	}
	var entries []ErrorEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}
	return entries
}

func (t *ErrorTracker) writeRecent(ctx context.Context, entries []ErrorEntry) bool {
	raw, err := json.Marshal(entries)
	if err != nil {
		t.log.Warn(ctx, "failed to encode recent errors", "error", err)
		return false
	}
	return t.cache.Set(ctx, recentErrorsKey, string(raw), errorRetention)
}
