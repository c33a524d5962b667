// Package render draws the agent's side of the conversation: the welcome
// screen, replies, tool activity, confirmation prompts and turn statistics.
package render

import (
	"github.com/charmbracelet/lipgloss"
)

// ANSI color codes
const (
	ColorCyan   = lipgloss.Color("12") // Agent header/footer
	ColorYellow = lipgloss.Color("11") // Tool pending, confirmation
	ColorGreen  = lipgloss.Color("10") // Success indicator
	ColorRed    = lipgloss.Color("9")  // Error indicator
	ColorGray   = lipgloss.Color("8")  // Dim/secondary (timing, meta info)
)

// Symbols
const (
	SymbolToolPending   = "○" // Tool call requested
	SymbolToolComplete  = "●" // Tool call finished
	SymbolSuccess       = "✓"
	SymbolError         = "✗"
	SymbolDenied        = "⊘" // Tool call denied by the user
	SymbolQuestion      = "?"
	SymbolSystemMessage = "→"
)

var (
	// HeaderStyle is used for agent header/footer lines
	HeaderStyle = lipgloss.NewStyle().Foreground(ColorCyan)

	// ToolPendingStyle is used for requested tool calls and the spinner
	ToolPendingStyle = lipgloss.NewStyle().Foreground(ColorYellow)

	// QuestionStyle is used for the confirmation question
	QuestionStyle = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)

	SuccessStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorRed)

	// DimStyle is used for secondary information like timing and arguments
	DimStyle = lipgloss.NewStyle().Foreground(ColorGray)

	SystemMessageStyle = lipgloss.NewStyle().Foreground(ColorGray)
)

// StyledSymbol returns a symbol with appropriate styling applied
func StyledSymbol(symbol string, success bool) string {
	switch symbol {
	case SymbolToolPending, SymbolQuestion:
		return ToolPendingStyle.Render(symbol)
	case SymbolToolComplete:
		if success {
			return SuccessStyle.Render(symbol)
		}
		return ErrorStyle.Render(symbol)
	case SymbolSuccess:
		return SuccessStyle.Render(symbol)
	case SymbolError, SymbolDenied:
		return ErrorStyle.Render(symbol)
	case SymbolSystemMessage:
		return SystemMessageStyle.Render(symbol)
	default:
		return symbol
	}
}
