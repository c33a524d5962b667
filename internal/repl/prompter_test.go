package repl

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/atinylittleshell/toolgate/internal/gate"
	"github.com/atinylittleshell/toolgate/internal/repl/input"
	"github.com/atinylittleshell/toolgate/internal/repl/render"
	"github.com/atinylittleshell/toolgate/internal/toolkit"
)

func TestTerminalPrompter_Confirm(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{answer: "y\n", want: true},
		{answer: "Y\n", want: true},
		{answer: "yes\n", want: true},
		{answer: " YES \r\n", want: true},
		{answer: "n\n", want: false},
		{answer: "no\n", want: false},
		{answer: "\n", want: false},
		{answer: "sure\n", want: false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.answer), func(t *testing.T) {
			var out bytes.Buffer
			prompter := NewTerminalPrompter(render.New(&out, nil), input.NewReader(strings.NewReader(tt.answer)))

			ok, err := prompter.Confirm(context.Background(), gate.Request{
				ToolName:  "GoogleShopping_SearchProducts",
				Arguments: map[string]any{"keywords": "wireless mouse"},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)

			assert.Contains(t, out.String(), "GoogleShopping_SearchProducts")
			assert.Contains(t, out.String(), `"keywords": "wireless mouse"`)
			assert.Contains(t, out.String(), "Do you approve this tool call? [y/N]")
		})
	}
}

func TestTerminalPrompter_EndOfInput(t *testing.T) {
	var out bytes.Buffer
	prompter := NewTerminalPrompter(render.New(&out, nil), input.NewReader(strings.NewReader("")))

	ok, err := prompter.Confirm(context.Background(), gate.Request{ToolName: "Slack_SendMessage"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, out.String(), "{}")
}

func TestTerminalPrompter_Cancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	prompter := NewTerminalPrompter(render.New(&out, nil), input.NewReader(pr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := prompter.Confirm(ctx, gate.Request{ToolName: "Slack_SendMessage"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTerminalPrompter_LateAnswerAfterTimeoutIsDropped(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	reader := input.NewReader(pr)
	g := gate.New(gate.Options{
		Prompter: NewTerminalPrompter(render.New(&out, nil), reader),
		Policy:   gate.NewPolicy([]string{"*"}),
		Timeout:  20 * time.Millisecond,
		Logger:   zaptest.NewLogger(t),
	})

	invoked := 0
	outcome, err := g.ConfirmAndInvoke(context.Background(), "Slack_SendMessage", nil,
		func(ctx context.Context, args map[string]any) (*toolkit.Result, error) {
			invoked++
			return toolkit.NewResult("sent"), nil
		})
	require.NoError(t, err)
	assert.Equal(t, gate.Denied{ToolName: "Slack_SendMessage", Reason: gate.ReasonTimeout}, outcome)
	assert.Zero(t, invoked)

	go func() {
		_, _ = pw.Write([]byte("y\nfind me a wireless mouse\n"))
	}()

	line, err := reader.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "find me a wireless mouse", line)
}

func TestIsAnswer(t *testing.T) {
	for _, line := range []string{"y", " YES ", "n", "No", ""} {
		assert.True(t, isAnswer(line), line)
	}
	for _, line := range []string{"find me a mouse", "yep"} {
		assert.False(t, isAnswer(line), line)
	}
}
