package models

import "testing"

func TestToolResultToMessage(t *testing.T) {
	res := ToolResult{ToolCallID: "call_1", Content: "42 results"}
	msg := res.ToMessage()
	if msg.Role != RoleTool {
		t.Errorf("expected tool role, got %q", msg.Role)
	}
	if msg.ToolCallID != "call_1" {
		t.Errorf("expected tool_call_id call_1, got %q", msg.ToolCallID)
	}
	if msg.Content != "42 results" {
		t.Errorf("unexpected content %q", msg.Content)
	}
}

func TestToolResultToMessageErrorFallback(t *testing.T) {
	res := ToolResult{ToolCallID: "call_2", IsError: true, ErrorDetail: "timed out"}
	msg := res.ToMessage()
	if msg.Content != "timed out" {
		t.Errorf("expected error detail as content, got %q", msg.Content)
	}
}

func TestEventTypeIsTerminal(t *testing.T) {
	cases := []struct {
		typ      EventType
		terminal bool
	}{
		{EventThinking, false},
		{EventToolStart, false},
		{EventToolResult, false},
		{EventAgentMessage, false},
		{EventComplete, true},
		{EventError, true},
	}
	for _, tc := range cases {
		if got := tc.typ.IsTerminal(); got != tc.terminal {
			t.Errorf("%s: IsTerminal = %v, want %v", tc.typ, got, tc.terminal)
		}
	}
}
