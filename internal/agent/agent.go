// Package agent integrates LLM providers behind a uniform completion
// interface and runs the conversation orchestrator on top of them.
//
// Providers run the full tool loop internally: when the model requests a
// tool invocation the provider executes it from the supplied tool table,
// feeds the result back, and continues until the model produces a final
// text reply or the round limit is reached.
package agent

import "context"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// maxToolRounds bounds the tool-execution loop per completion.
const maxToolRounds = 5

// ChatMessage is one prior conversation turn passed to the model.
type ChatMessage struct {
	Role    string
	Content string
}

// Request is a provider-agnostic completion request.
type Request struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// System is the instruction payload assembled by the orchestrator.
	System string

	// Messages is the conversation so far, oldest first, ending with the
	// current user message.
	Messages []ChatMessage

	MaxTokens   int
	Temperature float32
}

// Result is the provider's final answer after any tool rounds.
type Result struct {
	Reply string

	// ToolsUsed lists the names of tools the model invoked, in call order.
	ToolsUsed []string

	// TokensUsed is the total token count when the provider reports it.
	TokensUsed int
}

// Provider is a model backend capable of tool-assisted completion.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request, tools []Tool) (Result, error)
}
