// Package toolkit describes the tools an agent can call and the providers
// that supply them.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atinylittleshell/toolgate/internal/llm"
)

// Invoker executes a tool call with the model-supplied arguments.
type Invoker func(ctx context.Context, args map[string]any) (*Result, error)

// Tool is a tool descriptor as supplied by a provider.
type Tool struct {
	// Name is the unique identifier the model uses to call the tool.
	Name        string
	Description string

	// InputSchema is the JSON schema of the arguments object.
	InputSchema map[string]any

	// QualifiedName is the provider's own name for the tool, when it differs
	// from Name (e.g. "GoogleShopping.SearchProducts").
	QualifiedName string

	Invoke Invoker
}

// Definition returns the tool as offered to the model.
func (t Tool) Definition() llm.ChatTool {
	return llm.ChatTool{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.InputSchema,
	}
}

// ProviderName returns QualifiedName, or Name when the provider has none.
func (t Tool) ProviderName() string {
	if t.QualifiedName != "" {
		return t.QualifiedName
	}
	return t.Name
}

// Result is the output of a tool call.
type Result struct {
	// Value is the structured output exactly as the provider returned it.
	Value any

	// Text is the rendering of Value handed back to the model.
	Text string
}

// NewResult wraps a provider value. Strings are passed through, everything
// else is rendered as JSON.
func NewResult(value any) *Result {
	if s, ok := value.(string); ok {
		return &Result{Value: value, Text: s}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return &Result{Value: value, Text: fmt.Sprintf("%v", value)}
	}
	return &Result{Value: value, Text: string(data)}
}

// Selection names the tools to fetch from a provider.
type Selection struct {
	Toolkits []string
	Tools    []string
	Limit    int
}

// Provider supplies tool descriptors.
type Provider interface {
	ListTools(ctx context.Context, sel Selection) ([]Tool, error)
}
