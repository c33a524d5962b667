package repl

import (
	"context"
	"fmt"
	"strings"

	"github.com/atinylittleshell/toolgate/internal/gate"
	"github.com/atinylittleshell/toolgate/internal/repl/input"
	"github.com/atinylittleshell/toolgate/internal/repl/render"
)

// TerminalPrompter asks the person at the terminal to approve tool calls.
// It reads answers from the same Reader as the REPL.
type TerminalPrompter struct {
	renderer *render.Renderer
	reader   *input.Reader
}

var _ gate.Prompter = (*TerminalPrompter)(nil)

// NewTerminalPrompter creates a TerminalPrompter.
func NewTerminalPrompter(renderer *render.Renderer, reader *input.Reader) *TerminalPrompter {
	return &TerminalPrompter{renderer: renderer, reader: reader}
}

// Confirm shows the call and returns true only for "y" or "yes".
// Errors from the reader, including io.EOF and ctx errors, are returned as is.
// When ctx ends first, a y/n answer typed afterwards is discarded instead of
// reaching the chat prompt.
func (p *TerminalPrompter) Confirm(ctx context.Context, req gate.Request) (bool, error) {
	p.renderer.RenderConfirmation(req.ToolName, req.Arguments)
	fmt.Fprint(p.renderer.Writer(), p.renderer.ConfirmationQuestion())

	line, err := p.reader.ReadLine(ctx)
	if err != nil {
		if ctx.Err() != nil {
			p.reader.Abandon(isAnswer)
		}
		fmt.Fprintln(p.renderer.Writer())
		return false, err
	}

	return approves(line), nil
}

func normalize(line string) string {
	return strings.ToLower(strings.TrimSpace(line))
}

func approves(line string) bool {
	switch normalize(line) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// isAnswer reports whether line reads as a reply to the approval question.
func isAnswer(line string) bool {
	switch normalize(line) {
	case "", "y", "yes", "n", "no":
		return true
	default:
		return false
	}
}
