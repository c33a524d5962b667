// Package gate puts a human confirmation step, and a one-time per-user
// authorization handshake, in front of tool invocations.
//
// Tools are decorated at tool-list construction time: Wrap takes a tool and
// returns a new Invocation that authorizes, asks the human when the Policy
// says so, and only then runs the tool's own Invoker. The provider's tool
// values are never modified. A denial is reported as a Denied outcome, not as
// an error, so callers can branch on it directly.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinylittleshell/toolgate/internal/toolkit"
)

// Request describes the call the human is asked to approve.
type Request struct {
	ToolName  string
	Arguments map[string]any
}

// Prompter asks a human to approve a tool call. It returns io.EOF when no
// more input can be read, and ctx.Err() when ctx ends first.
type Prompter interface {
	Confirm(ctx context.Context, req Request) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, req Request) (bool, error)

func (f PrompterFunc) Confirm(ctx context.Context, req Request) (bool, error) {
	return f(ctx, req)
}

// PromptError means the human could not be asked. The call did not run.
type PromptError struct {
	ToolName string
	Err      error
}

func (e *PromptError) Error() string {
	return fmt.Sprintf("failed to confirm tool call '%s': %v", e.ToolName, e.Err)
}

func (e *PromptError) Unwrap() error {
	return e.Err
}

// Invocation is a gated tool call.
type Invocation func(ctx context.Context, args map[string]any) (Outcome, error)

// Guarded pairs a tool descriptor with its gated invocation.
type Guarded struct {
	Tool toolkit.Tool
	Call Invocation
}

// Policy decides which tools need human confirmation.
type Policy struct {
	all   bool
	names map[string]struct{}
}

// NewPolicy builds a Policy from tool names; "*" selects every tool.
func NewPolicy(names []string) Policy {
	return Policy{
		all: lo.Contains(names, "*"),
		names: lo.SliceToMap(names, func(name string) (string, struct{}) {
			return name, struct{}{}
		}),
	}
}

// Requires reports whether calls to toolName must be confirmed.
func (p Policy) Requires(toolName string) bool {
	if p.all {
		return true
	}
	_, ok := p.names[toolName]
	return ok
}

// Options configures a Gate.
type Options struct {
	Prompter Prompter

	// Authorizer is consulted before every call. Nil skips authorization.
	Authorizer *Authorizer
	UserID     string

	Policy Policy

	// Timeout bounds each confirmation prompt. Zero waits indefinitely;
	// otherwise an unanswered prompt is denied.
	Timeout time.Duration

	Logger *zap.Logger
}

// Gate runs tool calls behind authorization and human confirmation.
type Gate struct {
	prompter   Prompter
	authorizer *Authorizer
	userID     string
	policy     Policy
	timeout    time.Duration
	logger     *zap.Logger
}

// New creates a Gate.
func New(opts Options) *Gate {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		prompter:   opts.Prompter,
		authorizer: opts.Authorizer,
		userID:     opts.UserID,
		policy:     opts.Policy,
		timeout:    opts.Timeout,
		logger:     logger,
	}
}

// ConfirmAndInvoke shows the call to the human and runs invoke only if they
// approve. The invocation's result and error are returned unchanged. A
// denial returns Denied and a nil error, and invoke is not called.
func (g *Gate) ConfirmAndInvoke(ctx context.Context, toolName string, args map[string]any, invoke toolkit.Invoker) (Outcome, error) {
	approved, reason, err := g.confirm(ctx, toolName, args)
	if err != nil {
		return nil, err
	}

	if !approved {
		g.logger.Info("tool call denied",
			zap.String("tool", toolName),
			zap.String("reason", reason),
		)
		return Denied{ToolName: toolName, Reason: reason}, nil
	}

	g.logger.Info("tool call approved", zap.String("tool", toolName))

	result, err := invoke(ctx, args)
	if err != nil {
		return nil, err
	}
	return Approved{Result: result}, nil
}

func (g *Gate) confirm(ctx context.Context, toolName string, args map[string]any) (bool, string, error) {
	if g.prompter == nil {
		return false, "", &PromptError{ToolName: toolName, Err: errors.New("no prompter configured")}
	}

	promptCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		promptCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	ok, err := g.prompter.Confirm(promptCtx, Request{ToolName: toolName, Arguments: args})
	switch {
	case err == nil && ok:
		return true, "", nil
	case err == nil:
		return false, ReasonDeclined, nil
	case errors.Is(err, io.EOF):
		return false, ReasonNoInput, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return false, ReasonTimeout, nil
	default:
		return false, "", &PromptError{ToolName: toolName, Err: err}
	}
}

// Wrap decorates tool with authorization and, when the policy requires it,
// human confirmation. Tools outside the policy are authorized and invoked
// directly, always yielding Approved.
func (g *Gate) Wrap(tool toolkit.Tool) Invocation {
	invoke := tool.Invoke
	name := tool.Name

	return func(ctx context.Context, args map[string]any) (Outcome, error) {
		if invoke == nil {
			return nil, fmt.Errorf("tool '%s' has no invocation", name)
		}

		if g.authorizer != nil {
			if err := g.authorizer.Authorize(ctx, name, g.userID); err != nil {
				return nil, err
			}
		}

		if !g.policy.Requires(name) {
			result, err := invoke(ctx, args)
			if err != nil {
				return nil, err
			}
			return Approved{Result: result}, nil
		}

		return g.ConfirmAndInvoke(ctx, name, args, invoke)
	}
}

// GuardAll wraps every tool.
func (g *Gate) GuardAll(tools []toolkit.Tool) []Guarded {
	return lo.Map(tools, func(tool toolkit.Tool, _ int) Guarded {
		return Guarded{Tool: tool, Call: g.Wrap(tool)}
	})
}
