// Package conversation holds the message history of the chat session.
package conversation

import (
	"fmt"

	"github.com/atinylittleshell/toolgate/internal/llm"
)

// History is the ordered list of messages exchanged with the model. The
// system prompt is not part of it.
type History struct {
	messages []llm.Message
}

// New creates an empty History.
func New() *History {
	return &History{}
}

// AppendUser records a user message.
func (h *History) AppendUser(content string) {
	h.messages = append(h.messages, llm.Message{Role: llm.RoleUser, Content: content})
}

// Append records messages in order.
func (h *History) Append(messages ...llm.Message) {
	h.messages = append(h.messages, messages...)
}

// Messages returns a copy of the history.
func (h *History) Messages() []llm.Message {
	out := make([]llm.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	return len(h.messages)
}

// PatchDenial records that the user declined a call to toolName, so the model
// sees the cancellation on the next turn instead of a dangling tool request.
// It returns the assistant's acknowledgment.
func (h *History) PatchDenial(toolName string) string {
	ack := fmt.Sprintf("Sure, I cancelled the call to %s. What else can I do for you today?", toolName)
	h.Append(
		llm.Message{Role: llm.RoleAssistant, Content: fmt.Sprintf("Please confirm the call to %s", toolName)},
		llm.Message{Role: llm.RoleUser, Content: "I changed my mind, please don't do it!"},
		llm.Message{Role: llm.RoleAssistant, Content: ack},
	)
	return ack
}
