package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider implements Provider on top of Anthropic's Messages API.
// It is safe for concurrent use.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider. APIKey is required.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewAnthropicProvider creates a provider or fails when no API key is set.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaultAnthropicModel
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete runs the completion with a bounded tool loop: while the model
// keeps requesting tool use, execute the tools and feed results back.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request, tools []Tool) (Result, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  convertAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(tools) > 0 {
		converted, err := convertAnthropicTools(tools)
		if err != nil {
			return Result{}, err
		}
		params.Tools = converted
	}

	var result Result
	for round := 0; round <= maxToolRounds; round++ {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return Result{}, fmt.Errorf("anthropic: completion failed: %w", err)
		}
		result.TokensUsed += int(msg.Usage.InputTokens + msg.Usage.OutputTokens)

		var text strings.Builder
		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch b := block.AsAny().(type) {
			case anthropic.TextBlock:
				text.WriteString(b.Text)
			case anthropic.ToolUseBlock:
				result.ToolsUsed = append(result.ToolsUsed, b.Name)
				toolResults = append(toolResults, runTool(ctx, tools, b.Name, b.ID, b.Input))
			}
		}

		if len(toolResults) == 0 {
			result.Reply = text.String()
			return result, nil
		}

		// Continue the conversation: the assistant turn with its tool use,
		// then a user turn carrying the results.
		params.Messages = append(params.Messages, msg.ToParam())
		params.Messages = append(params.Messages, anthropic.NewUserMessage(toolResults...))
	}

	return Result{}, fmt.Errorf("anthropic: tool loop exceeded %d rounds", maxToolRounds)
}

func runTool(ctx context.Context, tools []Tool, name, id string, input []byte) anthropic.ContentBlockParamUnion {
	tool, ok := findTool(tools, name)
	if !ok {
		return anthropic.NewToolResultBlock(id, fmt.Sprintf("unknown tool %q", name), true)
	}
	output, err := tool.Execute(ctx, input)
	if err != nil {
		return anthropic.NewToolResultBlock(id, err.Error(), true)
	}
	return anthropic.NewToolResultBlock(id, output, false)
}

func convertAnthropicMessages(messages []ChatMessage) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result
}

func convertAnthropicTools(tools []Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", tool.Name(), err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if param.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid tool definition for %s", tool.Name())
		}
		param.OfTool.Description = anthropic.String(tool.Description())
		result = append(result, param)
	}
	return result, nil
}
