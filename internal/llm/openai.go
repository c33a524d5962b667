package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIOptions configures an OpenAIProvider.
type OpenAIOptions struct {
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for OpenAI-compatible gateways.
	BaseURL string
}

// OpenAIProvider implements the ModelProvider interface for OpenAI
type OpenAIProvider struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(opts OpenAIOptions, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// ChatCompletion sends a chat completion request to OpenAI.
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	if request.Model == "" {
		return nil, fmt.Errorf("OpenAI provider requires a model")
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:    request.Model,
		Messages: make([]openai.ChatCompletionMessage, len(request.Messages)),
	}

	for i, msg := range request.Messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return nil, err
		}
		openaiReq.Messages[i] = converted
	}

	if len(request.Tools) > 0 {
		openaiReq.Tools = make([]openai.Tool, len(request.Tools))
		for i, tool := range request.Tools {
			params := tool.Parameters
			if params == nil {
				params = map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{},
				}
			}
			openaiReq.Tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  params,
				},
			}
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI API returned no choices")
	}

	choice := resp.Choices[0]
	response := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse arguments for tool call '%s': %w", tc.Function.Name, err)
			}
		}
		response.ToolCalls = append(response.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	p.logger.Debug("chat completion",
		zap.String("model", request.Model),
		zap.Int("messages", len(request.Messages)),
		zap.String("finishReason", response.FinishReason),
		zap.Int("toolCalls", len(response.ToolCalls)),
	)

	return response, nil
}

func convertMessage(msg Message) (openai.ChatCompletionMessage, error) {
	converted := openai.ChatCompletionMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	// The chat API only accepts a participant name on non-tool messages.
	if msg.Role != RoleTool {
		converted.Name = msg.Name
	}

	for _, tc := range msg.ToolCalls {
		argsJSON, err := json.Marshal(tc.Arguments)
		if err != nil {
			return converted, fmt.Errorf("failed to marshal tool call arguments: %w", err)
		}
		converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: string(argsJSON),
			},
		})
	}

	return converted, nil
}
