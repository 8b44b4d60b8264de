package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/deepscribe/pkg/models"
)

// LoopState represents the research loop's position in its state
// machine. Idle is entry; Completed and Failed are terminal with no
// resumption, a new invocation starts a fresh session.
type LoopState string

const (
	StateIdle           LoopState = "idle"
	StateThinking       LoopState = "thinking"
	StateExecutingTools LoopState = "executing_tools"
	StateCompleted      LoopState = "completed"
	StateFailed         LoopState = "failed"
)

// LoopConfig configures research loop behavior.
type LoopConfig struct {
	// MaxIterations bounds the number of think steps per invocation.
	// Default: 15, clamped to 50.
	MaxIterations int

	// WallClockBudget bounds the total invocation duration independent
	// of the iteration budget. Default: 10m.
	WallClockBudget time.Duration

	// EventBuffer is the event channel buffer size. Default: 64.
	EventBuffer int
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxIterations:   15,
		WallClockBudget: 10 * time.Minute,
		EventBuffer:     64,
	}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	if config == nil {
		return DefaultLoopConfig()
	}
	out := *config
	if out.MaxIterations <= 0 {
		out.MaxIterations = 15
	}
	if out.MaxIterations > 50 {
		out.MaxIterations = 50
	}
	if out.WallClockBudget <= 0 {
		out.WallClockBudget = 10 * time.Minute
	}
	if out.EventBuffer <= 0 {
		out.EventBuffer = 64
	}
	return &out
}

// Request describes one research invocation.
type Request struct {
	// Query is the user's research question. Required.
	Query string

	// CustomInstructions are appended verbatim to the system prompt.
	CustomInstructions string

	// EnabledTools filters the tool catalog. Empty enables every tool;
	// unknown names are ignored.
	EnabledTools []string
}

// Result is the aggregated outcome of a batch invocation. Partial
// transcripts accumulated before a failure are still returned.
type Result struct {
	Success     bool             `json:"success"`
	FinalAnswer string           `json:"final_answer,omitempty"`
	Transcript  []models.Message `json:"messages"`
	ToolsUsed   []string         `json:"tools_used"`
	Iterations  int              `json:"iterations"`
	IsComplete  bool             `json:"is_complete"`
	Error       string           `json:"error,omitempty"`
	SessionID   string           `json:"session_id"`
}

// Invocation is a handle on a running streaming invocation.
type Invocation struct {
	Session *models.Session
	Events  <-chan *models.Event
}

// ResearchLoop drives the think-act-observe cycle: it alternates model
// think steps with tool execution, enforces iteration and wall-clock
// budgets, detects the terminal-answer convention, and emits an ordered
// event stream. The transcript is exclusively owned by the loop for the
// duration of one invocation.
type ResearchLoop struct {
	gateway   *ModelGateway
	registry  *ToolRegistry
	executor  *Executor
	assembler *PromptAssembler
	config    *LoopConfig
	logger    *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewResearchLoop creates a research loop. If executor is nil a default
// one is built over the registry; if config is nil defaults apply.
func NewResearchLoop(gateway *ModelGateway, registry *ToolRegistry, executor *Executor, config *LoopConfig, logger *slog.Logger) (*ResearchLoop, error) {
	if gateway == nil {
		return nil, ErrNoProvider
	}
	if registry == nil {
		registry = NewToolRegistry()
	}
	if executor == nil {
		executor = NewExecutor(registry, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResearchLoop{
		gateway:   gateway,
		registry:  registry,
		executor:  executor,
		assembler: NewPromptAssembler(registry),
		config:    sanitizeLoopConfig(config),
		logger:    logger,
	}, nil
}

// Run starts a streaming invocation. The returned event channel is
// closed after exactly one terminal event.
func (l *ResearchLoop) Run(ctx context.Context, req Request) (*Invocation, error) {
	session, stream, runCtx, cancel, err := l.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	go func() {
		defer l.finish(session.ID, cancel)
		l.execute(runCtx, session, req, stream)
	}()

	return &Invocation{Session: session, Events: stream.Events()}, nil
}

// RunAggregate runs an invocation to completion and returns the
// aggregated result: final answer, full transcript, tools used in
// first-use order, and the error category on failure.
func (l *ResearchLoop) RunAggregate(ctx context.Context, req Request) (*Result, error) {
	session, stream, runCtx, cancel, err := l.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	defer l.finish(session.ID, cancel)

	result := &Result{SessionID: session.ID, ToolsUsed: []string{}}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		seen := make(map[string]bool)
		for ev := range stream.Events() {
			switch ev.Type {
			case models.EventToolStart:
				if !seen[ev.ToolName] {
					seen[ev.ToolName] = true
					result.ToolsUsed = append(result.ToolsUsed, ev.ToolName)
				}
			case models.EventComplete:
				result.Success = true
				result.IsComplete = true
				result.FinalAnswer = ev.Content
			case models.EventError:
				// Detail already leads with the failure category.
				result.Error = ev.ErrorDetail
			}
		}
	}()

	transcript := l.execute(runCtx, session, req, stream)
	wg.Wait()

	result.Transcript = transcript
	result.Iterations = session.IterationCount
	return result, nil
}

// Cancel cancels an in-flight invocation by session identifier. It
// reports whether a matching invocation was found. Cancellation takes
// effect at the next suspension point.
func (l *ResearchLoop) Cancel(sessionID string) bool {
	l.mu.Lock()
	cancel, ok := l.active[sessionID]
	l.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (l *ResearchLoop) begin(ctx context.Context, req Request) (*models.Session, *EventStream, context.Context, context.CancelFunc, error) {
	if req.Query == "" {
		return nil, nil, nil, nil, fmt.Errorf("research request: empty query")
	}

	session := NewSession(l.config.MaxIterations, l.config.WallClockBudget)
	stream := NewEventStream(session.ID, l.config.EventBuffer)
	runCtx, cancel := context.WithTimeout(ctx, l.config.WallClockBudget)

	l.mu.Lock()
	if l.active == nil {
		l.active = make(map[string]context.CancelFunc)
	}
	l.active[session.ID] = cancel
	l.mu.Unlock()

	return session, stream, runCtx, cancel, nil
}

func (l *ResearchLoop) finish(sessionID string, cancel context.CancelFunc) {
	cancel()
	l.mu.Lock()
	delete(l.active, sessionID)
	l.mu.Unlock()
}

// execute runs the state machine to a terminal state and returns the
// final transcript. Exactly one terminal event is emitted.
func (l *ResearchLoop) execute(ctx context.Context, session *models.Session, req Request, stream *EventStream) []models.Message {
	logger := l.logger.With("session_id", session.ID)
	bundle := l.assembler.Build(req.EnabledTools, req.CustomInstructions)

	transcript := []models.Message{{
		Role:      models.RoleUser,
		Content:   req.Query,
		CreatedAt: time.Now().UTC(),
	}}

	malformedRetried := false

	logger.Info("research started",
		"max_iterations", session.MaxIterations,
		"enabled_tools", len(bundle.ToolSpecs))

	for {
		if err := ctx.Err(); err != nil {
			l.fail(stream, logger, session, PhaseThinking, err)
			return transcript
		}

		if session.IterationCount >= session.MaxIterations {
			l.fail(stream, logger, session, PhaseThinking, ErrBudgetExceeded)
			return transcript
		}

		// Thinking
		session.Status = string(StateThinking)
		turn, err := l.gateway.Think(ctx, bundle.SystemPrompt, transcript, bundle.ToolSpecs)
		session.IterationCount++
		if err != nil {
			l.fail(stream, logger, session, PhaseThinking, err)
			return transcript
		}

		if turn.ParseError != nil {
			if malformedRetried {
				l.fail(stream, logger, session, PhaseThinking, turn.ParseError)
				return transcript
			}
			malformedRetried = true
			logger.Warn("malformed model output, re-asking", "error", turn.ParseError)
			transcript = append(transcript, models.Message{
				Role:      models.RoleUser,
				Content:   "Your previous tool call carried invalid JSON arguments. Re-issue the call with arguments that match the declared schema.",
				CreatedAt: time.Now().UTC(),
			})
			continue
		}

		if len(turn.ToolCalls) > 0 {
			if turn.Content != "" {
				stream.Thinking(turn.Content, session.IterationCount)
			}
			transcript = append(transcript, models.Message{
				Role:      models.RoleAssistant,
				Content:   turn.Content,
				ToolCalls: turn.ToolCalls,
				CreatedAt: time.Now().UTC(),
			})

			// ExecutingTools: fan out, join before the next think step.
			session.Status = string(StateExecutingTools)
			for _, call := range turn.ToolCalls {
				stream.ToolStart(call, session.IterationCount)
			}

			results := l.executor.ExecuteAll(ctx, turn.ToolCalls)

			if err := ctx.Err(); err != nil {
				l.fail(stream, logger, session, PhaseExecuteTools, err)
				return transcript
			}

			// Results are appended in the order the calls were issued,
			// not the order executions completed.
			for i, res := range ResultsToToolResults(results) {
				stream.ToolResult(turn.ToolCalls[i].Name, res, session.IterationCount)
				transcript = append(transcript, res.ToMessage())
				if res.IsError {
					logger.Warn("tool failed",
						"tool", turn.ToolCalls[i].Name,
						"tool_call_id", res.ToolCallID,
						"detail", res.ErrorDetail)
				}
			}

			continue
		}

		if answer, ok := ExtractAnswer(turn.Content); ok {
			transcript = append(transcript, models.Message{
				Role:      models.RoleAssistant,
				Content:   turn.Content,
				CreatedAt: time.Now().UTC(),
			})
			session.Status = string(StateCompleted)
			logger.Info("research completed", "iterations", session.IterationCount)
			stream.Complete(answer, session.IterationCount)
			return transcript
		}

		// Implicit continuation: free text without the terminal marker is
		// appended and the loop thinks again, bounded by the same budget.
		// Bare prose is never accepted as a final answer.
		if turn.Content != "" {
			stream.AgentMessage(turn.Content, session.IterationCount)
			transcript = append(transcript, models.Message{
				Role:      models.RoleAssistant,
				Content:   turn.Content,
				CreatedAt: time.Now().UTC(),
			})
		}
	}
}

func (l *ResearchLoop) fail(stream *EventStream, logger *slog.Logger, session *models.Session, phase LoopPhase, cause error) {
	session.Status = string(StateFailed)
	loopErr := &LoopError{
		Category:  classifyFailure(cause),
		Phase:     phase,
		Iteration: session.IterationCount,
		Cause:     cause,
	}
	logger.Error("research failed",
		"category", string(loopErr.Category),
		"phase", string(phase),
		"iterations", session.IterationCount,
		"error", cause)
	stream.Error(loopErr.Category, loopErr.Error(), session.IterationCount)
}

func classifyFailure(err error) FailureCategory {
	switch {
	case errors.Is(err, context.Canceled):
		return FailureCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrBudgetExceeded), errors.Is(err, ErrDeadlineExceeded):
		return FailureBudgetExceeded
	case errors.Is(err, ErrMalformedOutput):
		return FailureProtocol
	default:
		return FailureProvider
	}
}
