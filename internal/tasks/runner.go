// Package tasks runs pipeline work in the background. Submitted messages
// are queued to a fixed worker pool and their state is tracked in the
// shared store so any instance can answer status queries.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/relay/internal/cache"
	"github.com/relaycore/relay/internal/kv"
	"github.com/relaycore/relay/internal/observability"
	"github.com/relaycore/relay/internal/pipeline"
)

// Task lifecycle states.
const (
	StatusSubmitted = "submitted"
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const (
	recordTTL      = 24 * time.Hour
	defaultWorkers = 4
	defaultQueue   = 256
	taskTimeout    = 5 * time.Minute
)

// ErrQueueFull is returned by Submit when the backlog is saturated.
var ErrQueueFull = errors.New("tasks: queue is full")

// Record is the persisted state of one background task.
type Record struct {
	TaskID      string             `json:"task_id"`
	Status      string             `json:"status"`
	SubmittedAt time.Time          `json:"submitted_at"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Result      *pipeline.Response `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Status is the externally visible task state, shaped like an async job
// result: Result, Successful and Failed stay null until the task is ready.
type Status struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Result     any    `json:"result"`
	Ready      bool   `json:"ready"`
	Successful *bool  `json:"successful"`
	Failed     *bool  `json:"failed"`
}

type job struct {
	taskID      string
	submittedAt time.Time
	req         pipeline.Request
}

// Runner owns the worker pool and the task records.
type Runner struct {
	pipeline *pipeline.Pipeline
	records  *cache.Cache
	log      *observability.Logger
	metrics  *observability.Metrics

	workers int
	queue   chan job
	done    chan struct{}
}

// RunnerConfig collects the runner's dependencies. Workers and QueueSize
// fall back to sensible defaults when zero.
type RunnerConfig struct {
	Store     kv.Store
	Pipeline  *pipeline.Pipeline
	Log       *observability.Logger
	Metrics   *observability.Metrics
	Workers   int
	QueueSize int
}

// NewRunner builds a runner; call Start to begin draining the queue.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueue
	}
	return &Runner{
		pipeline: cfg.Pipeline,
		records:  cache.NewWithPrefix(cfg.Store, ""),
		log:      cfg.Log,
		metrics:  cfg.Metrics,
		workers:  cfg.Workers,
		queue:    make(chan job, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (r *Runner) Start() {
	for i := 0; i < r.workers; i++ {
		go r.worker()
	}
}

// Stop closes the queue and waits for in-flight tasks, bounded by ctx.
func (r *Runner) Stop(ctx context.Context) error {
	close(r.queue)
	for i := 0; i < r.workers; i++ {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Submit enqueues a message for background processing and returns the
// task id to poll. It never blocks: a saturated queue is an error.
func (r *Runner) Submit(ctx context.Context, req pipeline.Request) (string, error) {
	taskID := uuid.NewString()
	submittedAt := time.Now().UTC()
	r.save(ctx, Record{
		TaskID:      taskID,
		Status:      StatusSubmitted,
		SubmittedAt: submittedAt,
	})

	select {
	case r.queue <- job{taskID: taskID, submittedAt: submittedAt, req: req}:
	default:
		r.delete(ctx, taskID)
		return "", ErrQueueFull
	}

	r.log.Debug(ctx, "task submitted", "task_id", taskID, "tenant_id", req.TenantID)
	return taskID, nil
}

// Status reports the current state of a task. The second return is false
// when the task id is unknown or its record has expired.
func (r *Runner) Status(ctx context.Context, taskID string) (Status, bool) {
	raw, ok := r.records.Get(ctx, recordKey(taskID))
	if !ok {
		return Status{}, false
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Status{}, false
	}

	status := Status{TaskID: rec.TaskID, Status: rec.Status}
	switch rec.Status {
	case StatusSucceeded:
		status.Ready = true
		status.Successful = boolPtr(true)
		status.Failed = boolPtr(false)
		status.Result = rec.Result
	case StatusFailed:
		status.Ready = true
		status.Successful = boolPtr(false)
		status.Failed = boolPtr(true)
		status.Result = map[string]any{"error": rec.Error}
	}
	return status, true
}

func (r *Runner) worker() {
	defer func() { r.done <- struct{}{} }()
	for j := range r.queue {
		r.run(j)
	}
}

func (r *Runner) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	ctx = observability.WithTaskID(ctx, j.taskID)

	rec := Record{TaskID: j.taskID, Status: StatusStarted, SubmittedAt: j.submittedAt}
	r.save(ctx, rec)

	resp, err := r.pipeline.Process(ctx, j.req)
	now := time.Now().UTC()
	rec.FinishedAt = &now
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		r.countTask("failed")
		r.log.Warn(ctx, "task failed", "task_id", j.taskID, "error", err)
	} else {
		rec.Status = StatusSucceeded
		rec.Result = &resp
		r.countTask("succeeded")
		r.log.Info(ctx, "task succeeded", "task_id", j.taskID)
	}
	r.save(ctx, rec)
}

func (r *Runner) save(ctx context.Context, rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	r.records.Set(ctx, recordKey(rec.TaskID), string(data), recordTTL)
}

func (r *Runner) delete(ctx context.Context, taskID string) {
	r.records.Delete(ctx, recordKey(taskID))
}

func (r *Runner) countTask(status string) {
	if r.metrics != nil {
		r.metrics.TaskCounter.WithLabelValues(status).Inc()
	}
}

func recordKey(taskID string) string { return "task:" + taskID }

func boolPtr(b bool) *bool { return &b }
