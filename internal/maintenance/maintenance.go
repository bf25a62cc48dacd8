// Package maintenance holds the housekeeping jobs that keep the store
// healthy: pruning stale error records and refreshing session summaries.
// Periodic jobs run on a cron scheduler; session summaries are keyed per
// session and refreshed through the summary endpoint instead.
package maintenance

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/relaycore/relay/internal/memory"
	"github.com/relaycore/relay/internal/observability"
	"github.com/relaycore/relay/internal/telemetry"
)

const (
	// summaryWindow is how many trailing user messages feed a summary.
	summaryWindow = 5
	// summaryHistoryLimit bounds the history read per refresh.
	summaryHistoryLimit = 20

	errorRetention  = 24 * time.Hour
	defaultSchedule = "@hourly"
	jobRunTimeout   = time.Minute
	summaryPrefix   = "Recent topics discussed: "
)

// Summarizer rebuilds the stored digest for a session from its recent
// user messages.
type Summarizer struct {
	sessions *memory.Store
	log      *observability.Logger
}

func NewSummarizer(sessions *memory.Store, log *observability.Logger) *Summarizer {
	return &Summarizer{sessions: sessions, log: log}
}

// Refresh regenerates and stores the summary for one session. An empty
// return means the session had no user messages to summarize.
func (s *Summarizer) Refresh(ctx context.Context, tenantID, sessionID string) string {
	history := s.sessions.History(ctx, tenantID, sessionID, summaryHistoryLimit)
	if len(history) == 0 {
		return ""
	}

	var topics []string
	for _, msg := range history {
		if msg.Role == memory.RoleUser {
			topics = append(topics, msg.Content)
		}
	}
	if len(topics) == 0 {
		return ""
	}
	if len(topics) > summaryWindow {
		topics = topics[len(topics)-summaryWindow:]
	}

	summary := summaryPrefix + strings.Join(topics, ", ")
	if !s.sessions.SetSummary(ctx, tenantID, sessionID, summary) {
		s.log.Warn(ctx, "summary refresh not persisted",
			"tenant_id", tenantID, "session_id", sessionID)
	}
	return summary
}

// Scheduler drives the periodic jobs.
type Scheduler struct {
	cron   *cron.Cron
	errors *telemetry.ErrorTracker
	log    *observability.Logger
}

// SchedulerConfig configures the periodic jobs. PruneSchedule accepts a
// cron spec or descriptor; empty means hourly.
type SchedulerConfig struct {
	Errors        *telemetry.ErrorTracker
	Log           *observability.Logger
	PruneSchedule string
}

// NewScheduler registers the housekeeping jobs. Start must be called to
// begin running them.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		errors: cfg.Errors,
		log:    cfg.Log,
	}

	schedule := cfg.PruneSchedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.pruneErrors); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running the scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) pruneErrors() {
	ctx, cancel := context.WithTimeout(context.Background(), jobRunTimeout)
	defer cancel()
	if s.errors.Prune(ctx, errorRetention) {
		s.log.Debug(ctx, "error records pruned", "retention", errorRetention)
	}
}
