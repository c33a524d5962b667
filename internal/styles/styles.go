// Package styles colors the few lines toolgate writes outside the agent
// renderer: the input prompt and fatal errors.
package styles

import (
	"os"

	"github.com/muesli/termenv"
)

var (
	stdout = termenv.NewOutput(os.Stdout)
	stderr = termenv.NewOutput(os.Stderr)

	// PROMPT styles the "> " input prompt
	PROMPT = func(s string) string {
		return stdout.String(s).
			Foreground(stdout.Color("12")).
			Bold().
			String()
	}
	// ERROR styles fatal errors written to stderr
	ERROR = func(s string) string {
		return stderr.String(s).
			Foreground(stderr.Color("9")).
			String()
	}
	// GOODBYE styles the farewell line
	GOODBYE = func(s string) string {
		return stdout.String(s).
			Foreground(stdout.Color("8")).
			String()
	}
)
