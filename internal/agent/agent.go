// Package agent runs the model/tool loop for one user turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinylittleshell/toolgate/internal/gate"
	"github.com/atinylittleshell/toolgate/internal/llm"
	"github.com/atinylittleshell/toolgate/internal/repl/render"
	"github.com/atinylittleshell/toolgate/internal/toolkit"
)

// DefaultMaxIterations is the default maximum number of model calls per turn.
const DefaultMaxIterations = 100

// timeNow is a variable that can be overridden for testing.
var timeNow = time.Now

// Options configures an Agent.
type Options struct {
	// Name is shown in the turn header.
	Name string

	Provider     llm.ModelProvider
	Model        string
	SystemPrompt string

	// Tools validates calls; Guarded runs them.
	Tools   *toolkit.Set
	Guarded []gate.Guarded

	// MaxIterations bounds the model calls in one turn (0 uses default).
	MaxIterations int

	Logger *zap.Logger
}

// Agent sends the conversation to the model and runs the tools it asks for.
type Agent struct {
	name          string
	provider      llm.ModelProvider
	model         string
	systemPrompt  string
	tools         *toolkit.Set
	calls         map[string]gate.Invocation
	definitions   []llm.ChatTool
	maxIterations int
	logger        *zap.Logger
	renderer      *render.Renderer
}

// Turn is the result of one completed user turn.
type Turn struct {
	// Messages are the messages the turn added to the conversation, in order.
	// Empty when the turn was denied.
	Messages []llm.Message

	// Reply is the model's final answer.
	Reply string

	// Denied is set when the user declined a tool call. The turn stopped there.
	Denied *gate.Denied

	Usage     llm.Usage
	ToolCalls int
	Duration  time.Duration
}

// New creates an Agent.
func New(opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tools := opts.Tools
	if tools == nil {
		tools = toolkit.NewSet(lo.Map(opts.Guarded, func(g gate.Guarded, _ int) toolkit.Tool { return g.Tool }), logger)
	}

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	name := opts.Name
	if name == "" {
		name = "toolgate"
	}

	return &Agent{
		name:         name,
		provider:     opts.Provider,
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		tools:        tools,
		calls: lo.SliceToMap(opts.Guarded, func(g gate.Guarded) (string, gate.Invocation) {
			return g.Tool.Name, g.Call
		}),
		definitions: lo.Map(opts.Guarded, func(g gate.Guarded, _ int) llm.ChatTool {
			return g.Tool.Definition()
		}),
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// SetRenderer sets the renderer for agent output.
// If not set, nothing is rendered.
func (a *Agent) SetRenderer(r *render.Renderer) {
	a.renderer = r
}

// Run sends history to the model and keeps running the tools it requests
// until it answers without tool calls. history must end with the user's
// message and is not modified.
//
// A denied tool call ends the turn immediately: Turn.Denied is set and no
// messages are returned. Authorization and confirmation failures fail the
// turn; any other tool failure is reported to the model so it can recover.
func (a *Agent) Run(ctx context.Context, history []llm.Message) (*Turn, error) {
	startTime := timeNow()
	turn := &Turn{}

	if a.renderer != nil {
		a.renderer.RenderAgentHeader(a.name)
	}

	finish := func() {
		turn.Duration = timeNow().Sub(startTime)
		if a.renderer != nil {
			a.renderer.RenderAgentFooter(turn.Usage.PromptTokens, turn.Usage.CompletionTokens, turn.Duration)
		}
	}

	base := a.buildMessages(history)

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		request := llm.ChatRequest{
			Model:    a.model,
			Messages: append(append([]llm.Message{}, base...), turn.Messages...),
			Tools:    a.definitions,
		}

		var stopSpinner func()
		if a.renderer != nil {
			stopSpinner = a.renderer.StartThinkingSpinner(ctx)
		}

		response, err := a.provider.ChatCompletion(ctx, request)

		if stopSpinner != nil {
			stopSpinner()
		}

		if err != nil {
			finish()
			return nil, fmt.Errorf("agent error: %w", err)
		}

		turn.Usage.Add(response.Usage)

		if len(response.ToolCalls) == 0 {
			turn.Messages = append(turn.Messages, llm.Message{
				Role:    llm.RoleAssistant,
				Content: response.Content,
			})
			turn.Reply = response.Content

			if a.renderer != nil {
				a.renderer.RenderAgentText(response.Content)
			}
			finish()

			a.logger.Info("agent turn completed",
				zap.Int("iterations", iteration+1),
				zap.Int("toolCalls", turn.ToolCalls),
				zap.Int("promptTokens", turn.Usage.PromptTokens),
				zap.Int("completionTokens", turn.Usage.CompletionTokens),
				zap.Duration("duration", turn.Duration),
			)
			return turn, nil
		}

		if a.renderer != nil && response.Content != "" {
			a.renderer.RenderAgentText(response.Content)
		}

		toolCalls := lo.Map(response.ToolCalls, func(tc llm.ToolCall, _ int) llm.ToolCall {
			if tc.ID == "" {
				tc.ID = "call_" + uuid.NewString()
			}
			return tc
		})

		turn.Messages = append(turn.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   response.Content,
			ToolCalls: toolCalls,
		})

		for _, toolCall := range toolCalls {
			turn.ToolCalls++

			result, denied, err := a.executeToolCall(ctx, toolCall)
			if err != nil {
				finish()
				return nil, err
			}

			if denied != nil {
				turn.Denied = denied
				turn.Messages = nil
				finish()

				a.logger.Info("agent turn denied",
					zap.String("tool", denied.ToolName),
					zap.String("reason", denied.Reason),
				)
				return turn, nil
			}

			turn.Messages = append(turn.Messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				Name:       toolCall.Name,
				ToolCallID: toolCall.ID,
			})
		}
	}

	finish()
	return nil, fmt.Errorf("agent reached maximum iterations (%d) without completing", a.maxIterations)
}

// buildMessages constructs the message array for the provider, including system prompt.
func (a *Agent) buildMessages(history []llm.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1)
	if a.systemPrompt != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: a.systemPrompt,
		})
	}
	return append(messages, history...)
}

// executeToolCall runs one tool call. It returns the text handed back to the
// model, or the denial, or an error that must end the turn.
func (a *Agent) executeToolCall(ctx context.Context, toolCall llm.ToolCall) (string, *gate.Denied, error) {
	call, ok := a.calls[toolCall.Name]
	if !ok {
		message := fmt.Sprintf("Error: tool '%s' does not exist.", toolCall.Name)
		if suggestion := a.tools.Suggest(toolCall.Name); suggestion != "" {
			message += fmt.Sprintf(" Did you mean '%s'?", suggestion)
		}
		a.logger.Warn("model called unknown tool", zap.String("tool", toolCall.Name))
		if a.renderer != nil {
			a.renderer.RenderToolComplete(toolCall.Name, 0, false)
		}
		return message, nil, nil
	}

	if err := a.tools.Validate(toolCall.Name, toolCall.Arguments); err != nil {
		a.logger.Warn("model sent invalid tool arguments",
			zap.String("tool", toolCall.Name),
			zap.Error(err),
		)
		if a.renderer != nil {
			a.renderer.RenderToolComplete(toolCall.Name, 0, false)
		}
		return fmt.Sprintf("Error: %v", err), nil, nil
	}

	if a.renderer != nil {
		a.renderer.RenderToolExecuting(toolCall.Name, toolCall.Arguments)
	}

	execStart := timeNow()
	outcome, err := call(ctx, toolCall.Arguments)
	execDuration := timeNow().Sub(execStart)

	if err != nil {
		if mustStop(ctx, err) {
			if a.renderer != nil {
				a.renderer.RenderToolComplete(toolCall.Name, execDuration, false)
			}
			return "", nil, err
		}

		// The model gets the failure so it can recover
		a.logger.Warn("tool execution failed", append(a.toolFields(toolCall.Name), zap.Error(err))...)
		if a.renderer != nil {
			a.renderer.RenderToolComplete(toolCall.Name, execDuration, false)
		}
		return fmt.Sprintf("Error executing tool: %v", err), nil, nil
	}

	switch o := outcome.(type) {
	case gate.Denied:
		if a.renderer != nil {
			a.renderer.RenderToolDenied(o.ToolName, o.Reason)
		}
		return "", &o, nil
	case gate.Approved:
		text := ""
		if o.Result != nil {
			text = o.Result.Text
		}
		if a.renderer != nil {
			a.renderer.RenderToolComplete(toolCall.Name, execDuration, true)
			a.renderer.RenderToolOutput(text)
		}
		a.logger.Debug("tool executed", append(a.toolFields(toolCall.Name), zap.Duration("duration", execDuration))...)
		return text, nil, nil
	default:
		return "", nil, fmt.Errorf("tool '%s' returned an unknown outcome %T", toolCall.Name, outcome)
	}
}

// toolFields names a tool in log entries, with the provider's name for it.
func (a *Agent) toolFields(name string) []zap.Field {
	fields := []zap.Field{zap.String("tool", name)}
	if tool, ok := a.tools.Get(name); ok {
		fields = append(fields, zap.String("providerName", tool.ProviderName()))
	}
	return fields
}

// mustStop reports whether err ends the turn instead of being shown to the model.
func mustStop(ctx context.Context, err error) bool {
	var authErr *gate.AuthorizationError
	var promptErr *gate.PromptError
	return errors.As(err, &authErr) || errors.As(err, &promptErr) || ctx.Err() != nil
}
