package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/deepscribe/pkg/models"
)

// loopTestProvider returns scripted responses in order. The last script
// repeats if the loop asks for more turns than were scripted.
type loopTestProvider struct {
	mu           sync.Mutex
	responses    [][]CompletionChunk
	calls        int32
	completeFunc func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

func (p *loopTestProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.completeFunc != nil {
		return p.completeFunc(ctx, req)
	}

	p.mu.Lock()
	idx := int(atomic.LoadInt32(&p.calls)) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	script := p.responses[idx]
	p.mu.Unlock()

	ch := make(chan *CompletionChunk, len(script)+1)
	for i := range script {
		chunk := script[i]
		ch <- &chunk
	}
	ch <- &CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *loopTestProvider) Name() string        { return "test" }
func (p *loopTestProvider) Models() []Model     { return []Model{{ID: "test-model"}} }
func (p *loopTestProvider) SupportsTools() bool { return true }

type fakeTool struct {
	name     string
	schema   string
	execFunc func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "test tool " + t.name }

func (t *fakeTool) Schema() json.RawMessage {
	if t.schema != "" {
		return json.RawMessage(t.schema)
	}
	return json.RawMessage(`{"type":"object"}`)
}

func (t *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if t.execFunc != nil {
		return t.execFunc(ctx, params)
	}
	return &ToolResult{Content: "ok"}, nil
}

func newTestLoop(t *testing.T, provider LLMProvider, config *LoopConfig, tools ...Tool) (*ResearchLoop, *ToolRegistry) {
	t.Helper()
	registry := NewToolRegistry()
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("register tool: %v", err)
		}
	}
	gateway, err := NewModelGateway(provider, GatewayConfig{MaxRetries: 1, RetryDelay: time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	executor := NewExecutor(registry, &ExecutorConfig{
		MaxConcurrency:  5,
		DefaultTimeout:  200 * time.Millisecond,
		DefaultRetries:  0,
		RetryBackoff:    time.Millisecond,
		MaxRetryBackoff: 10 * time.Millisecond,
	})
	loop, err := NewResearchLoop(gateway, registry, executor, config, nil)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return loop, registry
}

func answerChunk(text string) CompletionChunk {
	return CompletionChunk{Text: "<answer>" + text + "</answer>"}
}

func toolCallChunk(id, name, args string) CompletionChunk {
	return CompletionChunk{ToolCall: &models.ToolCall{
		ID:        id,
		Name:      name,
		Arguments: json.RawMessage(args),
	}}
}

func TestResearchLoopDirectAnswer(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{answerChunk("2+2 equals 4.")},
	}}
	loop, _ := newTestLoop(t, provider, nil)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "What is 2+2?"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", result.Iterations)
	}
	if !strings.Contains(result.FinalAnswer, "4") {
		t.Errorf("expected final answer to contain 4, got %q", result.FinalAnswer)
	}
	if len(result.ToolsUsed) != 0 {
		t.Errorf("expected no tools used, got %v", result.ToolsUsed)
	}
}

func TestResearchLoopSingleToolCall(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{toolCallChunk("call_1", "search", `{"query":["go concurrency"]}`)},
		{answerChunk("Goroutines and channels.")},
	}}
	var executed int32
	search := &fakeTool{
		name:   "search",
		schema: `{"type":"object","properties":{"query":{"type":"array","items":{"type":"string"}}},"required":["query"]}`,
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			atomic.AddInt32(&executed, 1)
			return &ToolResult{Content: "search results"}, nil
		},
	}
	loop, _ := newTestLoop(t, provider, nil, search)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "How does Go handle concurrency?"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", result.Iterations)
	}
	if atomic.LoadInt32(&executed) != 1 {
		t.Errorf("expected 1 tool execution, got %d", executed)
	}
	if len(result.ToolsUsed) != 1 || result.ToolsUsed[0] != "search" {
		t.Errorf("expected tools_used [search], got %v", result.ToolsUsed)
	}

	// Every issued call has exactly one tool-role answer in the transcript.
	var toolMsgs int
	for _, msg := range result.Transcript {
		if msg.Role == models.RoleTool {
			toolMsgs++
			if msg.ToolCallID != "call_1" {
				t.Errorf("orphaned tool result %q", msg.ToolCallID)
			}
		}
	}
	if toolMsgs != 1 {
		t.Errorf("expected 1 tool message, got %d", toolMsgs)
	}
}

func TestResearchLoopToolTimeoutDoesNotAbort(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{toolCallChunk("call_1", "slow", `{}`)},
		{answerChunk("done without the tool")},
	}}
	slow := &fakeTool{
		name: "slow",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	loop, _ := newTestLoop(t, provider, nil, slow)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "use the slow tool"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if !result.Success {
		t.Fatalf("timeout should not fail the invocation, got error %q", result.Error)
	}

	var sawFailedResult bool
	for _, msg := range result.Transcript {
		if msg.Role == models.RoleTool && strings.Contains(msg.Content, "timeout") {
			sawFailedResult = true
		}
	}
	if !sawFailedResult {
		t.Error("expected a failed tool result in the transcript")
	}
}

func TestResearchLoopBudgetExceeded(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{{Text: "still thinking about it"}},
	}}
	loop, _ := newTestLoop(t, provider, &LoopConfig{MaxIterations: 3})

	result, err := loop.RunAggregate(context.Background(), Request{Query: "never finishes"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, string(FailureBudgetExceeded)) {
		t.Errorf("expected BudgetExceeded category, got %q", result.Error)
	}
	if result.Iterations != 3 {
		t.Errorf("expected exactly 3 iterations, got %d", result.Iterations)
	}

	var assistantMsgs int
	for _, msg := range result.Transcript {
		if msg.Role == models.RoleAssistant {
			assistantMsgs++
		}
	}
	if assistantMsgs != 3 {
		t.Errorf("expected 3 assistant messages, got %d", assistantMsgs)
	}
}

func TestTerminalFailureCarriesPhaseAndIteration(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{{Text: "still thinking about it"}},
	}}
	loop, _ := newTestLoop(t, provider, &LoopConfig{MaxIterations: 2})

	inv, err := loop.Run(context.Background(), Request{Query: "never finishes"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var last *models.Event
	for ev := range inv.Events {
		last = ev
	}
	if last == nil || last.Type != models.EventError {
		t.Fatalf("expected error terminal event, got %+v", last)
	}
	if !strings.Contains(last.ErrorDetail, string(PhaseThinking)) {
		t.Errorf("expected detail to name the %s phase, got %q", PhaseThinking, last.ErrorDetail)
	}
	if !strings.Contains(last.ErrorDetail, "iteration 2") {
		t.Errorf("expected detail to carry the failing iteration, got %q", last.ErrorDetail)
	}
	if !strings.Contains(last.ErrorDetail, string(FailureBudgetExceeded)) {
		t.Errorf("expected detail to lead with the category, got %q", last.ErrorDetail)
	}
	if inv.Session.Status != string(StateFailed) {
		t.Errorf("expected session status %q, got %q", StateFailed, inv.Session.Status)
	}
}

func TestResearchLoopCancellationDuringTools(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{toolCallChunk("call_1", "blocker", `{}`)},
	}}
	started := make(chan struct{})
	blocker := &fakeTool{
		name: "blocker",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	loop, _ := newTestLoop(t, provider, &LoopConfig{WallClockBudget: 5 * time.Second}, blocker)

	inv, err := loop.Run(context.Background(), Request{Query: "long research"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	go func() {
		<-started
		if !loop.Cancel(inv.Session.ID) {
			t.Error("Cancel should find the active session")
		}
	}()

	var events []*models.Event
	for ev := range inv.Events {
		events = append(events, ev)
	}
	if len(events) == 0 {
		t.Fatal("expected events before termination")
	}

	last := events[len(events)-1]
	if last.Type != models.EventError {
		t.Fatalf("expected error terminal event, got %s", last.Type)
	}
	if last.ErrorCategory != string(FailureCancelled) {
		t.Errorf("expected Cancelled category, got %q", last.ErrorCategory)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Type.IsTerminal() {
			t.Errorf("terminal event %s before the end of the stream", ev.Type)
		}
	}
}

func TestResearchLoopImplicitContinuation(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{{Text: "Let me reason about this first."}},
		{answerChunk("final verdict")},
	}}
	loop, _ := newTestLoop(t, provider, nil)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "needs two passes"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Iterations != 2 {
		t.Errorf("bare prose must not complete the loop; expected 2 iterations, got %d", result.Iterations)
	}
	if result.FinalAnswer != "final verdict" {
		t.Errorf("unexpected final answer %q", result.FinalAnswer)
	}
}

func TestResearchLoopToolErrorReportedToModel(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{toolCallChunk("call_1", "flaky", `{}`)},
		{answerChunk("adapted after failure")},
	}}
	flaky := &fakeTool{
		name: "flaky",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "upstream 500", IsError: true}, nil
		},
	}
	loop, _ := newTestLoop(t, provider, nil, flaky)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "tolerate tool failure"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if !result.Success {
		t.Fatalf("tool error must not abort the loop, got %q", result.Error)
	}
}

func TestResearchLoopUnknownToolRecovered(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{toolCallChunk("call_1", "no_such_tool", `{}`)},
		{answerChunk("answered anyway")},
	}}
	loop, _ := newTestLoop(t, provider, nil)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "request a missing tool"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if !result.Success {
		t.Fatalf("unknown tool must not abort the loop, got %q", result.Error)
	}

	var sawUnknown bool
	for _, msg := range result.Transcript {
		if msg.Role == models.RoleTool && strings.Contains(msg.Content, "unknown tool") {
			sawUnknown = true
		}
	}
	if !sawUnknown {
		t.Error("expected an unknown-tool result in the transcript")
	}
}

func TestResearchLoopInvalidArgumentsRecovered(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{toolCallChunk("call_1", "search", `{"wrong":"shape"}`)},
		{answerChunk("recovered")},
	}}
	search := &fakeTool{
		name:   "search",
		schema: `{"type":"object","properties":{"query":{"type":"array","items":{"type":"string"}}},"required":["query"]}`,
	}
	loop, _ := newTestLoop(t, provider, nil, search)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "bad arguments"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if !result.Success {
		t.Fatalf("schema violation must not abort the loop, got %q", result.Error)
	}

	var sawInvalid bool
	for _, msg := range result.Transcript {
		if msg.Role == models.RoleTool && strings.Contains(msg.Content, "invalid tool arguments") {
			sawInvalid = true
		}
	}
	if !sawInvalid {
		t.Error("expected a validation failure result in the transcript")
	}
}

func TestResearchLoopMalformedOutputRetryThenFail(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{toolCallChunk("call_1", "search", `{not json`)},
		{toolCallChunk("call_2", "search", `{still not json`)},
	}}
	search := &fakeTool{name: "search"}
	loop, _ := newTestLoop(t, provider, nil, search)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "keeps emitting garbage"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure after the malformed-output retry")
	}
	if !strings.Contains(result.Error, string(FailureProtocol)) {
		t.Errorf("expected ProtocolError category, got %q", result.Error)
	}
	if got := atomic.LoadInt32(&provider.calls); got != 2 {
		t.Errorf("expected exactly one re-ask (2 model calls), got %d", got)
	}
}

func TestResearchLoopMalformedOutputRecoversOnRetry(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{toolCallChunk("call_1", "search", `{not json`)},
		{toolCallChunk("call_2", "search", `{}`)},
		{answerChunk("fixed on the second try")},
	}}
	search := &fakeTool{name: "search"}
	loop, _ := newTestLoop(t, provider, nil, search)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "recoverable garbage"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected recovery after re-ask, got %q", result.Error)
	}
}

func TestResearchLoopProviderFailureTerminal(t *testing.T) {
	provider := &loopTestProvider{
		completeFunc: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
			return nil, errors.New("provider exploded")
		},
	}
	loop, _ := newTestLoop(t, provider, nil)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "doomed"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, string(FailureProvider)) {
		t.Errorf("expected ProviderError category, got %q", result.Error)
	}
	if len(result.Transcript) == 0 {
		t.Error("partial transcript must be returned on failure")
	}
}

func TestResearchLoopParallelToolResultsKeepIssueOrder(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{
			toolCallChunk("call_a", "slow_tool", `{}`),
			toolCallChunk("call_b", "fast_tool", `{}`),
		},
		{answerChunk("merged both results")},
	}}
	slowTool := &fakeTool{
		name: "slow_tool",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			time.Sleep(50 * time.Millisecond)
			return &ToolResult{Content: "slow output"}, nil
		},
	}
	fastTool := &fakeTool{
		name: "fast_tool",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "fast output"}, nil
		},
	}
	loop, _ := newTestLoop(t, provider, nil, slowTool, fastTool)

	result, err := loop.RunAggregate(context.Background(), Request{Query: "fan out"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}

	var order []string
	for _, msg := range result.Transcript {
		if msg.Role == models.RoleTool {
			order = append(order, msg.ToolCallID)
		}
	}
	if len(order) != 2 || order[0] != "call_a" || order[1] != "call_b" {
		t.Errorf("tool results must keep issue order, got %v", order)
	}
}

func TestResearchLoopEventOrdering(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{
		{{Text: "working on it"}, toolCallChunk("call_1", "search", `{}`)},
		{answerChunk("ordered answer")},
	}}
	search := &fakeTool{name: "search"}
	loop, _ := newTestLoop(t, provider, nil, search)

	inv, err := loop.Run(context.Background(), Request{Query: "check ordering"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var lastSeq uint64
	var terminals int
	for ev := range inv.Events {
		if ev.Seq <= lastSeq {
			t.Errorf("sequence not strictly increasing: %d after %d", ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq
		if ev.SessionID != inv.Session.ID {
			t.Errorf("event carries session %q, want %q", ev.SessionID, inv.Session.ID)
		}
		if ev.Type.IsTerminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("expected exactly one terminal event, got %d", terminals)
	}
	if inv.Session.Status != string(StateCompleted) {
		t.Errorf("expected session status %q, got %q", StateCompleted, inv.Session.Status)
	}
}

func TestResearchLoopEmptyQueryRejected(t *testing.T) {
	provider := &loopTestProvider{responses: [][]CompletionChunk{{answerChunk("x")}}}
	loop, _ := newTestLoop(t, provider, nil)

	if _, err := loop.Run(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty query")
	}
	if _, err := loop.RunAggregate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestResearchLoopWallClockBudget(t *testing.T) {
	provider := &loopTestProvider{
		completeFunc: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	loop, _ := newTestLoop(t, provider, &LoopConfig{WallClockBudget: 30 * time.Millisecond})

	result, err := loop.RunAggregate(context.Background(), Request{Query: "slow provider"})
	if err != nil {
		t.Fatalf("RunAggregate: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure when the wall-clock budget expires")
	}
	if !strings.Contains(result.Error, string(FailureBudgetExceeded)) {
		t.Errorf("expected BudgetExceeded category, got %q", result.Error)
	}
}

func TestResearchLoopConcurrentInvocations(t *testing.T) {
	provider := &loopTestProvider{
		completeFunc: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
			ch := make(chan *CompletionChunk, 2)
			ch <- &CompletionChunk{Text: "<answer>independent</answer>"}
			ch <- &CompletionChunk{Done: true}
			close(ch)
			return ch, nil
		},
	}
	loop, _ := newTestLoop(t, provider, nil)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := loop.RunAggregate(context.Background(), Request{Query: fmt.Sprintf("query %d", i)})
			if err != nil {
				errs <- err
				return
			}
			if !result.Success {
				errs <- errors.New(result.Error)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent invocation failed: %v", err)
	}
}
