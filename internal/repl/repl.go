// Package repl implements the interactive chat loop of toolgate.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/atinylittleshell/toolgate/internal/agent"
	"github.com/atinylittleshell/toolgate/internal/conversation"
	"github.com/atinylittleshell/toolgate/internal/gate"
	"github.com/atinylittleshell/toolgate/internal/history"
	"github.com/atinylittleshell/toolgate/internal/repl/input"
	"github.com/atinylittleshell/toolgate/internal/repl/render"
	"github.com/atinylittleshell/toolgate/internal/styles"
)

// ErrExit is returned when the user requests to exit the REPL.
var ErrExit = errors.New("exit requested")

const (
	promptText  = "> "
	goodbyeText = "Goodbye!"
)

// Options configures a REPL.
type Options struct {
	Agent    *agent.Agent
	Renderer *render.Renderer
	Reader   *input.Reader

	// History defaults to an empty conversation.
	History *conversation.History

	// Transcript records each turn. Nil disables recording.
	Transcript *history.HistoryManager
	UserID     string

	// Authorizer, if set, authorizes the Preauthorize tools for UserID
	// before the first prompt.
	Authorizer   *gate.Authorizer
	Preauthorize []string

	// Welcome is shown once when Run starts. Nil shows nothing.
	Welcome   *render.WelcomeInfo
	TermWidth func() int

	Logger *zap.Logger
}

// REPL reads prompts, runs agent turns and keeps the conversation.
type REPL struct {
	agent      *agent.Agent
	renderer   *render.Renderer
	reader     *input.Reader
	history    *conversation.History
	transcript *history.HistoryManager
	userID     string
	authorizer *gate.Authorizer
	preauth    []string
	welcome    *render.WelcomeInfo
	termWidth  func() int
	logger     *zap.Logger
}

// NewREPL creates a REPL. The agent renders through opts.Renderer.
func NewREPL(opts Options) (*REPL, error) {
	if opts.Agent == nil {
		return nil, errors.New("repl: agent is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("repl: renderer is required")
	}
	if opts.Reader == nil {
		return nil, errors.New("repl: reader is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	conv := opts.History
	if conv == nil {
		conv = conversation.New()
	}

	opts.Agent.SetRenderer(opts.Renderer)

	return &REPL{
		agent:      opts.Agent,
		renderer:   opts.Renderer,
		reader:     opts.Reader,
		history:    conv,
		transcript: opts.Transcript,
		userID:     opts.UserID,
		authorizer: opts.Authorizer,
		preauth:    opts.Preauthorize,
		welcome:    opts.Welcome,
		termWidth:  opts.TermWidth,
		logger:     logger,
	}, nil
}

// History returns the conversation kept by the REPL.
func (r *REPL) History() *conversation.History {
	return r.history
}

// Run reads prompts until the user exits, input ends or ctx is done.
// Exiting and end of input return nil.
func (r *REPL) Run(ctx context.Context) error {
	r.showWelcomeScreen()

	if err := r.authorizeTools(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(r.renderer.Writer(), styles.PROMPT(promptText))

		line, err := r.reader.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.renderer.Writer())
			r.sayGoodbye()
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		handled, err := r.handleBuiltinCommand(line)
		if errors.Is(err, ErrExit) {
			r.sayGoodbye()
			return nil
		}
		if handled {
			continue
		}

		if err := r.processPrompt(ctx, line); err != nil {
			return err
		}
	}
}

// authorizeTools runs the authorization handshake for every preauthorized
// tool. A failure is shown and the session goes on; the tool will ask again
// on first use.
func (r *REPL) authorizeTools(ctx context.Context) error {
	if r.authorizer == nil {
		return nil
	}
	for _, name := range r.preauth {
		if err := r.authorizer.Authorize(ctx, name, r.userID); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.logger.Warn("startup authorization failed", zap.String("tool", name), zap.Error(err))
			r.renderer.RenderError(err)
		}
	}
	return nil
}

// handleBuiltinCommand handles built-in REPL commands.
// Returns true if the command was handled, and an error if the REPL should exit.
func (r *REPL) handleBuiltinCommand(command string) (bool, error) {
	switch strings.ToLower(command) {
	case "exit":
		return true, ErrExit
	default:
		return false, nil
	}
}

// processPrompt runs one agent turn for prompt. Failed turns are reported
// and the loop goes on; only a done ctx is returned.
func (r *REPL) processPrompt(ctx context.Context, prompt string) error {
	entry := r.startTranscript(prompt)

	r.history.AppendUser(prompt)
	turn, err := r.agent.Run(ctx, r.history.Messages())

	switch {
	case err != nil:
		r.logger.Warn("agent turn failed", zap.Error(err))
		r.renderer.RenderError(err)
		r.finishTranscript(entry, history.Result{Outcome: history.OutcomeFailed, Err: err})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

	case turn.Denied != nil:
		ack := r.history.PatchDenial(turn.Denied.ToolName)
		r.renderer.RenderAgentText(ack)
		r.finishTranscript(entry, history.Result{
			Outcome:          history.OutcomeDenied,
			DeniedTool:       turn.Denied.ToolName,
			PromptTokens:     turn.Usage.PromptTokens,
			CompletionTokens: turn.Usage.CompletionTokens,
		})

	default:
		r.history.Append(turn.Messages...)
		r.finishTranscript(entry, history.Result{
			Outcome:          history.OutcomeCompleted,
			PromptTokens:     turn.Usage.PromptTokens,
			CompletionTokens: turn.Usage.CompletionTokens,
		})
	}

	return nil
}

func (r *REPL) startTranscript(prompt string) *history.Entry {
	if r.transcript == nil {
		return nil
	}
	entry, err := r.transcript.StartTurn(r.userID, prompt)
	if err != nil {
		r.logger.Warn("failed to record prompt in transcript", zap.Error(err))
		return nil
	}
	return entry
}

func (r *REPL) finishTranscript(entry *history.Entry, res history.Result) {
	if r.transcript == nil || entry == nil {
		return
	}
	if _, err := r.transcript.FinishTurn(entry, res); err != nil {
		r.logger.Warn("failed to record turn outcome in transcript", zap.Error(err))
	}
}

// showWelcomeScreen displays the welcome screen with session info.
func (r *REPL) showWelcomeScreen() {
	if r.welcome == nil {
		return
	}

	termWidth := 80
	if r.termWidth != nil {
		if width := r.termWidth(); width > 0 {
			termWidth = width
		}
	}

	render.RenderWelcome(r.renderer.Writer(), *r.welcome, termWidth)
}

func (r *REPL) sayGoodbye() {
	fmt.Fprintln(r.renderer.Writer(), styles.GOODBYE(goodbyeText))
}
