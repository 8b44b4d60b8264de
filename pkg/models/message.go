package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in the conversation transcript supplied to the
// model or produced by it. Tool-role messages carry the ToolCallID of
// the assistant tool call they answer, and IsError when that call
// failed, so providers can pass the error flag through to the model.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
}

// ToolCall represents a model's request to execute a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult represents the outcome of executing a tool call.
type ToolResult struct {
	ToolCallID  string `json:"tool_call_id"`
	Content     string `json:"content"`
	IsError     bool   `json:"is_error,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// ToMessage folds a tool result back into the transcript as a
// tool-role message.
func (r ToolResult) ToMessage() Message {
	content := r.Content
	if r.IsError && content == "" {
		content = r.ErrorDetail
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: r.ToolCallID,
		IsError:    r.IsError,
		CreatedAt:  time.Now().UTC(),
	}
}
