package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize/english"
)

// WelcomeInfo contains information to display in the welcome screen.
type WelcomeInfo struct {
	// Model is the chat model used by the agent
	Model string
	// Provider is where tools come from ("arcade" or "mcp")
	Provider string
	// UserID is the user tools are authorized for
	UserID string
	// Tools is the number of tools offered to the agent
	Tools int
	// ConfirmAll is true when every tool call needs approval
	ConfirmAll bool
	// Confirmed is the number of tools needing approval when ConfirmAll is false
	Confirmed int
	// Version is the toolgate version string
	Version string
}

// tips is the list of tips to display in the welcome screen.
// A "tip of the day" is selected based on the current date.
var tips = []string{
	"type exit to end the session",
	"answer y to let a tool call run; anything else cancels it",
	"set TOOLGATE_CONFIRM_TOOLS to choose which tools need your approval",
	"set TOOLGATE_CONFIRM_TIMEOUT to cancel unanswered confirmations",
	"set TOOLGATE_TOOLKITS to offer the agent more toolkits",
	"tools that need your account ask you to authorize them once per session",
	"set TOOLGATE_LOG_LEVEL=debug and check ~/.toolgate/toolgate.log when troubleshooting",
	"press Ctrl+D to exit",
}

var toolgateLogo = []string{
	" _              _             _       ",
	"| |_ ___   ___ | | __ _  __ _| |_ ___ ",
	"| __/ _ \\ / _ \\| |/ _` |/ _` | __/ _ \\",
	"| || (_) | (_) | | (_| | (_| | ||  __/",
	" \\__\\___/ \\___/|_|\\__, |\\__,_|\\__\\___|",
	"                  |___/               ",
}

// getTipOfTheDay returns a tip based on the current date.
func getTipOfTheDay() string {
	if len(tips) == 0 {
		return ""
	}
	now := time.Now()
	return tips[now.YearDay()%len(tips)]
}

// RenderWelcome renders the welcome screen to the given writer.
// The logo is shown above the session info when the terminal is wide enough.
func RenderWelcome(w io.Writer, info WelcomeInfo, termWidth int) {
	titleStyle := lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
	logoStyle := lipgloss.NewStyle().Foreground(ColorYellow)
	labelStyle := lipgloss.NewStyle().Foreground(ColorGray)
	valueStyle := lipgloss.NewStyle().Foreground(ColorYellow)
	dimStyle := lipgloss.NewStyle().Foreground(ColorGray).Italic(true)

	var output strings.Builder
	output.WriteString("\n")

	if termWidth >= len(toolgateLogo[0]) {
		for _, line := range toolgateLogo {
			output.WriteString(logoStyle.Render(line) + "\n")
		}
		output.WriteString("\n")
	}

	output.WriteString(titleStyle.Render("Welcome to toolgate! Type exit to quit.") + "\n\n")

	field := func(label, value string) {
		if value == "" {
			value = dimStyle.Render("not configured")
		} else {
			value = valueStyle.Render(value)
		}
		output.WriteString(labelStyle.Render(fmt.Sprintf("%-9s", label+":")) + value + "\n")
	}

	switch info.Version {
	case "":
	case "dev":
		output.WriteString(labelStyle.Render("version: ") + dimStyle.Render("development") + "\n")
	default:
		field("version", info.Version)
	}
	field("model", info.Model)
	field("tools", fmt.Sprintf("%s from %s", english.Plural(info.Tools, "tool", ""), info.Provider))
	field("user", info.UserID)

	switch {
	case info.ConfirmAll:
		field("confirm", "every tool call")
	case info.Confirmed > 0:
		field("confirm", english.Plural(info.Confirmed, "tool", ""))
	default:
		field("confirm", "no tools")
	}

	output.WriteString("\n")
	if tip := getTipOfTheDay(); tip != "" {
		output.WriteString(dimStyle.Render("tip: "+tip) + "\n")
	}
	output.WriteString("\n")

	fmt.Fprint(w, output.String())
}
