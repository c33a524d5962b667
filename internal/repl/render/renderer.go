package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

// Renderer handles all agent-related output in the REPL.
type Renderer struct {
	writer    io.Writer
	termWidth func() int // Function to get current terminal width

	// animate enables the thinking spinner; off when output is not a terminal
	animate bool
}

// New creates a new Renderer instance
func New(writer io.Writer, termWidth func() int) *Renderer {
	return &Renderer{
		writer:    writer,
		termWidth: termWidth,
	}
}

// SetAnimate enables or disables spinner animations
func (r *Renderer) SetAnimate(animate bool) {
	r.animate = animate
}

// Writer returns the destination of all rendered output
func (r *Renderer) Writer() io.Writer {
	return r.writer
}

// RenderAgentHeader renders the line that opens an agent turn
func (r *Renderer) RenderAgentHeader(agentName string) {
	fmt.Fprintln(r.writer, HeaderStyle.Render(fmt.Sprintf("── agent: %s ───", agentName)))
}

// RenderAgentFooter renders the line that closes an agent turn
func (r *Renderer) RenderAgentFooter(inputTokens, outputTokens int, duration time.Duration) {
	footer := fmt.Sprintf("── %s in · %s out · %.1fs ───",
		humanize.Comma(int64(inputTokens)),
		humanize.Comma(int64(outputTokens)),
		duration.Seconds(),
	)
	fmt.Fprintln(r.writer, HeaderStyle.Render(footer))
}

// StartThinkingSpinner starts a "Thinking..." spinner and returns a stop function.
// The stop function blocks until the spinner has fully stopped and cleared the line.
func (r *Renderer) StartThinkingSpinner(ctx context.Context) func() {
	if !r.animate {
		return func() {}
	}
	spinner := NewSpinner(r.writer)
	spinner.SetMessage("Thinking...")
	return spinner.Start(ctx)
}

// RenderAgentText renders a reply, wrapped to the terminal width
func (r *Renderer) RenderAgentText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	fmt.Fprintln(r.writer, wordwrap.String(text, r.getTerminalWidth()))
}

// RenderToolExecuting renders a tool call the model has requested
func (r *Renderer) RenderToolExecuting(toolName string, args map[string]interface{}) {
	fmt.Fprintf(r.writer, "%s %s\n", ToolPendingStyle.Render(SymbolToolPending), toolName)
	if len(args) > 0 {
		fmt.Fprintln(r.writer, DimStyle.Render(r.formatArgs(args)))
	}
}

// RenderToolComplete renders the completion status of a tool call
func (r *Renderer) RenderToolComplete(toolName string, duration time.Duration, success bool) {
	status := SuccessStyle.Render(SymbolSuccess)
	if !success {
		status = ErrorStyle.Render(SymbolError)
	}
	fmt.Fprintf(r.writer, "%s %s %s %s\n",
		StyledSymbol(SymbolToolComplete, success),
		toolName,
		status,
		DimStyle.Render(fmt.Sprintf("(%.1fs)", duration.Seconds())),
	)
}

// RenderToolOutput renders the first line of a tool's output, truncated to
// the terminal width
func (r *Renderer) RenderToolOutput(output string) {
	output = strings.TrimSpace(output)
	if output == "" {
		return
	}
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		output = output[:idx]
	}
	width := r.getTerminalWidth() - 3
	fmt.Fprintln(r.writer, DimStyle.Render("   "+truncate.StringWithTail(output, uint(width), "...")))
}

// RenderToolDenied renders a tool call the user declined
func (r *Renderer) RenderToolDenied(toolName, reason string) {
	fmt.Fprintf(r.writer, "%s %s %s\n",
		StyledSymbol(SymbolDenied, false),
		toolName,
		DimStyle.Render("("+reason+")"),
	)
}

// RenderConfirmation renders the details of a call awaiting approval
func (r *Renderer) RenderConfirmation(toolName string, args map[string]interface{}) {
	fmt.Fprintf(r.writer, "%s %s\n", StyledSymbol(SymbolQuestion, true), QuestionStyle.Render("The agent wants to call "+toolName))
	fmt.Fprintln(r.writer, DimStyle.Render(indent(formatJSON(args), "   ")))
}

// ConfirmationQuestion returns the styled yes/no question shown after
// RenderConfirmation
func (r *Renderer) ConfirmationQuestion() string {
	return QuestionStyle.Render("Do you approve this tool call? [y/N] ")
}

// RenderSystemMessage renders a system/status message with → prefix
func (r *Renderer) RenderSystemMessage(message string) {
	fmt.Fprintln(r.writer, SystemMessageStyle.Render(fmt.Sprintf("%s %s", SymbolSystemMessage, message)))
}

// RenderError renders an error that ended a turn
func (r *Renderer) RenderError(err error) {
	fmt.Fprintln(r.writer, ErrorStyle.Render(fmt.Sprintf("%s %v", SymbolError, err)))
}

// formatArgs formats tool arguments for display, one per line in key order
func (r *Renderer) formatArgs(args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		valueStr := fmt.Sprintf("%v", args[k])
		valueStr = truncate.StringWithTail(valueStr, 60, "...")
		sb.WriteString(fmt.Sprintf("   %s: %s\n", k, valueStr))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// getTerminalWidth returns the current terminal width, with a sensible default
func (r *Renderer) getTerminalWidth() int {
	if r.termWidth != nil {
		width := r.termWidth()
		if width > 0 {
			return width
		}
	}
	return 80
}

func formatJSON(args map[string]interface{}) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
