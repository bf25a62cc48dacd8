// Package memory implements bounded, expiring per-(tenant, session)
// conversation history with a rolling summary.
//
// Sessions are created implicitly on first append and expire seven days
// after the last write. Each session keeps at most the 20 newest messages;
// inserting beyond capacity evicts the oldest. The summary is stored
// independently with its own TTL and is not derived transactionally from
// the message list.
//
// Degraded mode: when the backing store is unreachable, every operation
// becomes a no-op or empty result. The pipeline continues without
// conversational memory rather than failing the request.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/relaycore/relay/internal/kv"
	"github.com/relaycore/relay/internal/observability"
)

const (
	// Capacity is the maximum number of messages retained per session.
	Capacity = 20

	// Retention is the session TTL, reset on every write.
	Retention = 7 * 24 * time.Hour

	// digestWindow is how many recent messages feed the context digest.
	digestWindow = 6
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn. Messages are immutable once
// stored.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Store is the session memory layer over the shared kv substrate.
type Store struct {
	store kv.Store
	log   *observability.Logger
}

// New creates a session store.
func New(store kv.Store, log *observability.Logger) *Store {
	return &Store{store: store, log: log}
}

func sessionKey(tenantID, sessionID string) string {
	return fmt.Sprintf("conversation:%s:%s", tenantID, sessionID)
}

func summaryKey(tenantID, sessionID string) string {
	return fmt.Sprintf("summary:%s:%s", tenantID, sessionID)
}

// Available reports whether conversational memory is usable right now.
func (s *Store) Available(ctx context.Context) bool {
	return s.store.Available(ctx)
}

// Append stores a message at the head of the session's history, truncates
// to capacity, and resets the session's retention window. Returns false
// (without error) when memory is degraded.
func (s *Store) Append(ctx context.Context, tenantID, sessionID, role, content string, metadata map[string]any) bool {
	if !s.store.Available(ctx) {
		return false
	}

	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		s.log.Warn(ctx, "failed to encode message", "error", err)
		return false
	}

	if err := s.store.PushCapped(ctx, sessionKey(tenantID, sessionID), string(raw), Capacity, Retention); err != nil {
		s.log.Warn(ctx, "failed to append message", "error", err)
		return false
	}
	return true
}

// History returns up to limit messages from the newest window of the
// session, in chronological order. Degraded mode returns an empty slice.
func (s *Store) History(ctx context.Context, tenantID, sessionID string, limit int) []Message {
	if limit <= 0 {
		limit = Capacity
	}
	if !s.store.Available(ctx) {
		return nil
	}

	raws, err := s.store.Range(ctx, sessionKey(tenantID, sessionID), 0, int64(limit)-1)
	if err != nil {
		s.log.Warn(ctx, "failed to read history", "error", err)
		return nil
	}

	// The list is newest-first; reverse into chronological order and skip
	// entries that fail to decode.
	history := make([]Message, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var msg Message
		if err := json.Unmarshal([]byte(raws[i]), &msg); err != nil {
			continue
		}
		history = append(history, msg)
	}
	return history
}

// Summary returns the session's rolling summary, or "" when absent or
// degraded.
func (s *Store) Summary(ctx context.Context, tenantID, sessionID string) string {
	if !s.store.Available(ctx) {
		return ""
	}
	summary, err := s.store.Get(ctx, summaryKey(tenantID, sessionID))
	if err != nil {
		return ""
	}
	return summary
}

// SetSummary stores the rolling summary with a fresh retention window,
// independent of the message list.
func (s *Store) SetSummary(ctx context.Context, tenantID, sessionID, summary string) bool {
	if !s.store.Available(ctx) {
		return false
	}
	if err := s.store.Set(ctx, summaryKey(tenantID, sessionID), summary, Retention); err != nil {
		s.log.Warn(ctx, "failed to store summary", "error", err)
		return false
	}
	return true
}

// ContextDigest derives a short synthetic context string from the last
// messages: up to the last three distinct user messages verbatim, and the
// last assistant message truncated to 100 characters. Returns "" when the
// session has no history. This is a projection, not a stored entity.
func (s *Store) ContextDigest(ctx context.Context, tenantID, sessionID string) string {
	history := s.History(ctx, tenantID, sessionID, digestWindow)
	if len(history) == 0 {
		return ""
	}

	var userMessages []string
	lastAssistant := ""
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			userMessages = append(userMessages, msg.Content)
		case RoleAssistant:
			lastAssistant = msg.Content
		}
	}
	if len(userMessages) == 0 {
		return ""
	}

	var parts []string
	if len(userMessages) > 1 {
		recent := lastDistinct(userMessages, 3)
		parts = append(parts, "User has asked about: "+strings.Join(recent, ", "))
	}
	if lastAssistant != "" {
		// Rune-wise truncation so multi-byte text is never split
		// mid-character.
		if runes := []rune(lastAssistant); len(runes) > 100 {
			lastAssistant = string(runes[:100]) + "..."
		}
		parts = append(parts, "Last discussed: "+lastAssistant)
	}
	return strings.Join(parts, " | ")
}

// Clear deletes both the session's message list and its summary.
func (s *Store) Clear(ctx context.Context, tenantID, sessionID string) bool {
	if !s.store.Available(ctx) {
		return false
	}
	err := s.store.Delete(ctx, sessionKey(tenantID, sessionID), summaryKey(tenantID, sessionID))
	return err == nil
}

// lastDistinct returns the trailing n distinct values of in, preserving
// the order of each value's final occurrence.
func lastDistinct(in []string, n int) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for i := len(in) - 1; i >= 0 && len(out) < n; i-- {
		if _, ok := seen[in[i]]; ok {
			continue
		}
		seen[in[i]] = struct{}{}
		out = append(out, in[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
