// Package llm defines the chat-completion model used by the agent loop and
// the providers that serve it.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ModelProvider defines the interface for LLM model providers
type ModelProvider interface {
	// Name returns the provider name (e.g., "openai")
	Name() string

	// ChatCompletion sends a chat completion request.
	// The ctx parameter allows cancellation of the request.
	ChatCompletion(ctx context.Context, request ChatRequest) (*ChatResponse, error)
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	// Model identifier, e.g. "gpt-4o-mini"
	Model string

	// Messages in the conversation
	Messages []Message

	// Tools available to the agent
	Tools []ChatTool
}

// Message represents a single message in the conversation
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	Name       string     // Optional: name of the tool or user
	ToolCalls  []ToolCall // Set on assistant messages that request tool calls
	ToolCallID string     // Set on tool result messages
}

// ChatTool represents a tool that can be called by the model
type ChatTool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	// The generated message
	Content string

	// Finish reason ("stop", "length", "tool_calls", etc.)
	FinishReason string

	// Token usage information
	Usage *Usage

	// Tool calls requested by the model
	ToolCalls []ToolCall
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ToolCall represents a tool call requested by the model
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}
