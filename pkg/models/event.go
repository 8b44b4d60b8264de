package models

import "time"

// EventType discriminates the variants of the research event stream.
type EventType string

const (
	// EventThinking indicates the model produced reasoning text.
	EventThinking EventType = "thinking"

	// EventToolStart indicates a tool call is about to execute.
	EventToolStart EventType = "tool_start"

	// EventToolResult indicates a tool call finished (success or failure).
	EventToolResult EventType = "tool_result"

	// EventAgentMessage carries intermediate assistant text that is not
	// a terminal answer.
	EventAgentMessage EventType = "agent_message"

	// EventComplete is the successful terminal event for a session.
	EventComplete EventType = "complete"

	// EventError is the failure terminal event for a session.
	EventError EventType = "error"
)

// IsTerminal reports whether the event type ends its session's stream.
func (t EventType) IsTerminal() bool {
	return t == EventComplete || t == EventError
}

// Event is the unit emitted on the research event stream. Sequence
// numbers are strictly increasing within a session, starting at 1.
type Event struct {
	Type      EventType `json:"type"`
	Seq       uint64    `json:"seq"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"ts"`

	// Content carries reasoning text, intermediate assistant text, or
	// the final answer depending on Type.
	Content string `json:"content,omitempty"`

	// Tool fields are populated for tool_start and tool_result events.
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolOutput string `json:"tool_output,omitempty"`
	ToolError  bool   `json:"tool_error,omitempty"`

	Iteration int `json:"iteration,omitempty"`

	// ErrorCategory and ErrorDetail are populated for error events.
	ErrorCategory string `json:"error_category,omitempty"`
	ErrorDetail   string `json:"error_detail,omitempty"`
}
