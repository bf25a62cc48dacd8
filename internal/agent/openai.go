package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIProvider implements Provider on top of OpenAI's chat completions
// API. It is safe for concurrent use.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures an OpenAIProvider. APIKey is required.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewOpenAIProvider creates a provider or fails when no API key is set.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete runs the completion with a bounded tool loop, executing
// requested tool calls and feeding results back until the model answers
// in text.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request, tools []Tool) (Result, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertOpenAIMessages(req.System, req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Tools:       convertOpenAITools(tools),
	}

	var result Result
	for round := 0; round <= maxToolRounds; round++ {
		resp, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return Result{}, fmt.Errorf("openai: completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return Result{}, errors.New("openai: response contained no choices")
		}
		result.TokensUsed += resp.Usage.TotalTokens

		choice := resp.Choices[0].Message
		if len(choice.ToolCalls) == 0 {
			result.Reply = choice.Content
			return result, nil
		}

		chatReq.Messages = append(chatReq.Messages, choice)
		for _, call := range choice.ToolCalls {
			result.ToolsUsed = append(result.ToolsUsed, call.Function.Name)
			chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    executeOpenAITool(ctx, tools, call),
			})
		}
	}

	return Result{}, fmt.Errorf("openai: tool loop exceeded %d rounds", maxToolRounds)
}

func executeOpenAITool(ctx context.Context, tools []Tool, call openai.ToolCall) string {
	tool, ok := findTool(tools, call.Function.Name)
	if !ok {
		return fmt.Sprintf("unknown tool %q", call.Function.Name)
	}
	output, err := tool.Execute(ctx, json.RawMessage(call.Function.Arguments))
	if err != nil {
		return err.Error()
	}
	return output
}

func convertOpenAIMessages(system string, messages []ChatMessage) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		result = append(result, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return result
}

func convertOpenAITools(tools []Tool) []openai.Tool {
	var result []openai.Tool
	for _, tool := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Schema(),
			},
		})
	}
	return result
}
