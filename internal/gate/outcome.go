package gate

import "github.com/atinylittleshell/toolgate/internal/toolkit"

// Outcome is the result of a gated tool call: either Approved or Denied.
type Outcome interface {
	isOutcome()
}

// Approved carries the result of a call the human allowed.
type Approved struct {
	Result *toolkit.Result
}

// Denied records that the human did not allow the call. The wrapped
// invocation never ran.
type Denied struct {
	ToolName string
	Reason   string
}

func (Approved) isOutcome() {}
func (Denied) isOutcome()   {}

// Denial reasons.
const (
	ReasonDeclined = "declined"
	ReasonTimeout  = "confirmation timed out"
	ReasonNoInput  = "no input available"
)
