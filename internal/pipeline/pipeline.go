// Package pipeline composes the guarded conversational flow: rate limit,
// input guard, tenant policy, session context, model orchestration, output
// guard, memory write-back, and fire-and-forget webhook notification.
//
// Only two failure classes reach the caller as errors: input rejection and
// rate limiting. Everything else degrades into the response envelope.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/relaycore/relay/internal/agent"
	"github.com/relaycore/relay/internal/guard"
	"github.com/relaycore/relay/internal/memory"
	"github.com/relaycore/relay/internal/observability"
	"github.com/relaycore/relay/internal/ratelimit"
	"github.com/relaycore/relay/internal/telemetry"
	"github.com/relaycore/relay/internal/tenant"
	"github.com/relaycore/relay/internal/webhooks"
)

// Per-session throttle applied to every message.
const (
	RateLimit  = 60
	RateWindow = 60 // seconds
)

// webhookTimeout bounds the detached notification dispatch, covering its
// full retry budget.
const webhookTimeout = 5 * time.Minute

// RejectionDetail is the generic message surfaced on input rejection. It
// deliberately does not say which rule matched.
const RejectionDetail = "Your message contains content that cannot be processed. Please rephrase and try again."

// InputRejectedError is returned when the input guard refuses a message.
// The matched flags stay server-side; callers surface RejectionDetail.
type InputRejectedError struct {
	Report guard.InputReport
}

func (e *InputRejectedError) Error() string { return "input rejected" }

// Request is one inbound message.
type Request struct {
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id"`
	Text      string `json:"text"`
	Locale    string `json:"locale"`
}

// Response is the pipeline's uniform success shape.
type Response struct {
	Reply      string         `json:"reply"`
	SessionID  string         `json:"session_id"`
	Confidence float64        `json:"confidence"`
	ToolsUsed  []string       `json:"tools_used"`
	Metadata   map[string]any `json:"metadata"`
}

// Pipeline wires the components together. All dependencies are injected
// at construction; none are optional except Metrics and Dispatcher.
type Pipeline struct {
	inputGuard   *guard.InputGuard
	outputGuard  *guard.OutputGuard
	sessions     *memory.Store
	limiter      *ratelimit.Limiter
	tenants      tenant.Resolver
	orchestrator *agent.Orchestrator
	dispatcher   *webhooks.Dispatcher
	errors       *telemetry.ErrorTracker
	log          *observability.Logger
	metrics      *observability.Metrics
}

// Config collects the pipeline's dependencies.
type Config struct {
	InputGuard   *guard.InputGuard
	OutputGuard  *guard.OutputGuard
	Sessions     *memory.Store
	Limiter      *ratelimit.Limiter
	Tenants      tenant.Resolver
	Orchestrator *agent.Orchestrator
	Dispatcher   *webhooks.Dispatcher
	Errors       *telemetry.ErrorTracker
	Log          *observability.Logger
	Metrics      *observability.Metrics
}

// New assembles a pipeline from its dependencies.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		inputGuard:   cfg.InputGuard,
		outputGuard:  cfg.OutputGuard,
		sessions:     cfg.Sessions,
		limiter:      cfg.Limiter,
		tenants:      cfg.Tenants,
		orchestrator: cfg.Orchestrator,
		dispatcher:   cfg.Dispatcher,
		errors:       cfg.Errors,
		log:          cfg.Log,
		metrics:      cfg.Metrics,
	}
}

// Process runs one message through the full guarded flow.
func (p *Pipeline) Process(ctx context.Context, req Request) (Response, error) {
	ctx = observability.WithTenantID(ctx, req.TenantID)
	ctx = observability.WithSessionID(ctx, req.SessionID)

	rateInfo, err := p.limiter.Enforce(ctx, "session:"+req.SessionID, RateLimit, RateWindow)
	if err != nil {
		var limitErr *ratelimit.LimitExceededError
		if errors.As(err, &limitErr) {
			p.countOutcome(req.TenantID, "rate_limited")
			return Response{}, err
		}
		return Response{}, err
	}

	accepted, sanitized, inputReport := p.inputGuard.Validate(req.Text, req.SessionID)
	if !accepted {
		p.countOutcome(req.TenantID, "rejected")
		if p.metrics != nil {
			for _, flag := range inputReport.Flags {
				p.metrics.GuardRejections.WithLabelValues(flag).Inc()
			}
		}
		p.log.Info(ctx, "input rejected", "flags", inputReport.Flags)
		return Response{}, &InputRejectedError{Report: inputReport}
	}

	cfg := p.tenants.Resolve(ctx, req.TenantID)
	sessionSummary := p.sessions.ContextDigest(ctx, req.TenantID, req.SessionID)

	envelope := p.orchestrator.Run(ctx, sanitized, req.SessionID, cfg, sessionSummary, req.Locale)
	finalReply, outputReport := p.outputGuard.Validate(envelope.Reply, envelope.Confidence, envelope.ToolsUsed)

	p.sessions.Append(ctx, req.TenantID, req.SessionID, memory.RoleUser, req.Text,
		map[string]any{"locale": req.Locale})
	p.sessions.Append(ctx, req.TenantID, req.SessionID, memory.RoleAssistant, finalReply,
		map[string]any{
			"confidence": envelope.Confidence,
			"tools_used": envelope.ToolsUsed,
			"model":      envelope.Metadata["model_used"],
		})

	p.notifyProcessed(ctx, req, sanitized, finalReply, envelope)

	metadata := envelope.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["input_guardrails"] = inputReport
	metadata["output_guardrails"] = outputReport
	metadata["rate_limit"] = rateInfo

	p.countOutcome(req.TenantID, "ok")
	return Response{
		Reply:      finalReply,
		SessionID:  req.SessionID,
		Confidence: envelope.Confidence,
		ToolsUsed:  envelope.ToolsUsed,
		Metadata:   metadata,
	}, nil
}

// notifyProcessed dispatches the message_processed event without blocking
// the request. The dispatch context is detached from the request so an
// already-finished request does not cancel in-flight deliveries.
func (p *Pipeline) notifyProcessed(ctx context.Context, req Request, message, reply string, envelope agent.Envelope) {
	if p.dispatcher == nil {
		return
	}

	event := webhooks.Event{
		EventType: webhooks.EventMessageProcessed,
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		Data: map[string]any{
			"message":    message,
			"reply":      reply,
			"tools_used": envelope.ToolsUsed,
			"confidence": envelope.Confidence,
		},
	}

	requestID := observability.RequestID(ctx)
	go func() {
		dispatchCtx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		dispatchCtx = observability.WithRequestID(dispatchCtx, requestID)

		result := p.dispatcher.Dispatch(dispatchCtx, event)
		if result.Failed > 0 {
			p.log.Warn(dispatchCtx, "webhook deliveries failed",
				"tenant_id", req.TenantID, "failed", result.Failed, "sent", result.Sent)
		}
	}()
}

// CaptureError records a pipeline-level failure in the rolling error log.
func (p *Pipeline) CaptureError(ctx context.Context, err error, errCtx map[string]any) string {
	if p.errors == nil {
		return ""
	}
	return p.errors.Capture(ctx, err, errCtx, telemetry.SeverityError)
}

func (p *Pipeline) countOutcome(tenantID, outcome string) {
	if p.metrics != nil {
		p.metrics.MessageCounter.WithLabelValues(tenantID, outcome).Inc()
	}
}
