package agent

import (
	"context"
	"strings"
	"time"

	"github.com/relaycore/relay/internal/observability"
	"github.com/relaycore/relay/internal/tenant"
)

// placeholderConfidence is the static confidence attached to successful
// replies. No genuine confidence estimation exists yet; metadata carries
// confidence_estimated=false so downstream consumers can tell.
const placeholderConfidence = 0.95

const defaultModelTimeout = 60 * time.Second

// Fallback replies for the two unrecoverable conditions. The envelope
// shape stays identical to a successful run.
const (
	unconfiguredReply = "I'm sorry, but I'm not properly configured to process your request. Please contact support."
	modelErrorReply   = "I apologize, but I encountered an issue processing your request. Please try again or contact support if the problem persists."
)

// Envelope is the orchestrator's uniform response shape. It is returned
// for every run, including failures; callers never see an error from Run.
type Envelope struct {
	Reply      string         `json:"reply"`
	Confidence float64        `json:"confidence"`
	ToolsUsed  []string       `json:"tools_used"`
	Metadata   map[string]any `json:"metadata"`
}

// Orchestrator assembles per-request context from tenant policy and the
// session summary, invokes the model provider, and normalizes the result.
type Orchestrator struct {
	provider Provider
	tools    []Tool
	log      *observability.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
	model    string
}

// OrchestratorConfig configures an Orchestrator. Provider may be nil, in
// which case every run returns the unconfigured fallback. Metrics may be
// nil.
type OrchestratorConfig struct {
	Provider Provider
	Tools    []Tool
	Log      *observability.Logger
	Metrics  *observability.Metrics
	Timeout  time.Duration
	Model    string
}

// NewOrchestrator builds an orchestrator with the full builtin tool table
// unless config.Tools narrows it.
func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	if config.Tools == nil {
		config.Tools = BuiltinTools()
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultModelTimeout
	}
	return &Orchestrator{
		provider: config.Provider,
		tools:    config.Tools,
		log:      config.Log,
		metrics:  config.Metrics,
		timeout:  config.Timeout,
		model:    config.Model,
	}
}

// Run invokes the model with the assembled instruction payload and returns
// a normalized envelope. Provider errors are converted into a fallback
// envelope with confidence 0.0 and the error detail in metadata; Run
// itself never fails.
func (o *Orchestrator) Run(ctx context.Context, message, sessionID string, cfg tenant.Config, sessionSummary, language string) Envelope {
	metadata := map[string]any{
		"model_used": o.model,
		"tenant_id":  cfg.TenantID,
		"locale":     language,
	}

	if o.provider == nil {
		metadata["error"] = "model provider not configured"
		return Envelope{Reply: unconfiguredReply, Confidence: 0.0, ToolsUsed: []string{}, Metadata: metadata}
	}

	req := Request{
		Model:  o.model,
		System: o.buildSystem(cfg, sessionSummary, language),
		Messages: []ChatMessage{
			{Role: RoleUser, Content: message},
		},
	}
	tools := FilterTools(o.tools, cfg.EnabledTools)

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	result, err := o.provider.Complete(callCtx, req, tools)
	elapsed := time.Since(start)

	if o.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		o.metrics.LLMRequestCounter.WithLabelValues(o.provider.Name(), o.model, status).Inc()
		o.metrics.LLMRequestDuration.WithLabelValues(o.provider.Name(), o.model).Observe(elapsed.Seconds())
	}

	if err != nil {
		o.log.Warn(ctx, "model call failed",
			"provider", o.provider.Name(), "session_id", sessionID, "error", err)
		metadata["error"] = err.Error()
		return Envelope{Reply: modelErrorReply, Confidence: 0.0, ToolsUsed: []string{}, Metadata: metadata}
	}

	toolsUsed := result.ToolsUsed
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	metadata["tokens_used"] = result.TokensUsed
	metadata["confidence_estimated"] = false
	return Envelope{
		Reply:      result.Reply,
		Confidence: placeholderConfidence,
		ToolsUsed:  toolsUsed,
		Metadata:   metadata,
	}
}

// buildSystem combines tenant policy and session context into the
// instruction payload. The session data itself is never included here,
// only its summary.
func (o *Orchestrator) buildSystem(cfg tenant.Config, sessionSummary, language string) string {
	parts := []string{"You are a helpful AI assistant."}
	if sessionSummary != "" {
		parts = append(parts, "Session context: "+sessionSummary)
	}
	if language != "" {
		parts = append(parts, "Respond in "+language+" language.")
	}
	if cfg.Tone != "" {
		parts = append(parts, "Use a "+cfg.Tone+" tone.")
	}
	if cfg.CustomInstructions != "" {
		parts = append(parts, cfg.CustomInstructions)
	}
	if len(cfg.Disclaimers) > 0 {
		parts = append(parts, "Important disclaimers: "+strings.Join(cfg.Disclaimers, "; "))
	}
	return strings.Join(parts, "\n")
}
