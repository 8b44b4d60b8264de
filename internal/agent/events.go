package agent

import (
	"sync"
	"time"

	"github.com/haasonsaas/deepscribe/pkg/models"
)

// EventStream is the single-writer event sink for one invocation. It
// stamps each event with the session identifier, a timestamp, and a
// strictly increasing sequence number starting at 1. Exactly one
// terminal event is delivered; anything emitted after it is dropped and
// the channel is closed.
type EventStream struct {
	sessionID string
	ch        chan *models.Event

	mu         sync.Mutex
	seq        uint64
	terminated bool
}

// NewEventStream creates an event stream for the given session with the
// given channel buffer size.
func NewEventStream(sessionID string, buffer int) *EventStream {
	if buffer < 0 {
		buffer = 0
	}
	return &EventStream{
		sessionID: sessionID,
		ch:        make(chan *models.Event, buffer),
	}
}

// Events returns the receive side of the stream.
func (s *EventStream) Events() <-chan *models.Event {
	return s.ch
}

// Emit stamps and delivers an event. Returns false if the stream has
// already terminated (the event is dropped). Emitting a terminal event
// closes the channel after delivery.
func (s *EventStream) Emit(ev *models.Event) bool {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return false
	}
	s.seq++
	ev.Seq = s.seq
	ev.SessionID = s.sessionID
	ev.Timestamp = time.Now().UTC()
	terminal := ev.Type.IsTerminal()
	if terminal {
		s.terminated = true
	}
	s.mu.Unlock()

	s.ch <- ev
	if terminal {
		close(s.ch)
	}
	return true
}

// Thinking emits a reasoning-text event.
func (s *EventStream) Thinking(content string, iteration int) {
	s.Emit(&models.Event{
		Type:      models.EventThinking,
		Content:   content,
		Iteration: iteration,
	})
}

// AgentMessage emits intermediate assistant text that did not match the
// terminal-answer convention.
func (s *EventStream) AgentMessage(content string, iteration int) {
	s.Emit(&models.Event{
		Type:      models.EventAgentMessage,
		Content:   content,
		Iteration: iteration,
	})
}

// ToolStart emits a tool_start event for a call about to execute.
func (s *EventStream) ToolStart(call models.ToolCall, iteration int) {
	s.Emit(&models.Event{
		Type:       models.EventToolStart,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Iteration:  iteration,
	})
}

// ToolResult emits a tool_result event for a finished call.
func (s *EventStream) ToolResult(name string, res models.ToolResult, iteration int) {
	s.Emit(&models.Event{
		Type:       models.EventToolResult,
		ToolName:   name,
		ToolCallID: res.ToolCallID,
		ToolOutput: res.Content,
		ToolError:  res.IsError,
		Iteration:  iteration,
	})
}

// Complete emits the successful terminal event carrying the final answer.
func (s *EventStream) Complete(finalAnswer string, iteration int) {
	s.Emit(&models.Event{
		Type:      models.EventComplete,
		Content:   finalAnswer,
		Iteration: iteration,
	})
}

// Error emits the failure terminal event.
func (s *EventStream) Error(category FailureCategory, detail string, iteration int) {
	s.Emit(&models.Event{
		Type:          models.EventError,
		ErrorCategory: string(category),
		ErrorDetail:   detail,
		Iteration:     iteration,
	})
}
