package coderunner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/deepscribe/internal/agent"
)

const (
	defaultSnippetTimeout = 30 * time.Second
	maxSnippetTimeout     = 120 * time.Second
	maxCodeSize           = 100 * 1024
)

// codeParams is the argument shape for the code tool.
type codeParams struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// CodeTool implements the agent.Tool interface for running code snippets.
// It is intended for data wrangling during research: parsing fetched
// content, computing statistics, transforming tables.
type CodeTool struct {
	runner *Runner
}

// NewCodeTool creates a code execution tool backed by the given runner.
func NewCodeTool(runner *Runner) *CodeTool {
	return &CodeTool{runner: runner}
}

func (t *CodeTool) Name() string {
	return "code"
}

func (t *CodeTool) Description() string {
	return "Execute a Python snippet and return its stdout, stderr, and exit code. Use for calculations, parsing, and data transformation during research."
}

func (t *CodeTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"code": {
				"type": "string",
				"description": "The Python code to execute. Print results to stdout."
			},
			"timeout_seconds": {
				"type": "integer",
				"minimum": 1,
				"maximum": 120,
				"description": "Execution time limit in seconds (default: 30)."
			}
		},
		"required": ["code"]
	}`)
}

// Execute runs the snippet and reports the outcome. Non-zero exits are
// returned as error results so the model can revise the code.
func (t *CodeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var cp codeParams
	if err := json.Unmarshal(params, &cp); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}

	if cp.Code == "" {
		return &agent.ToolResult{
			Content: "The code parameter is required",
			IsError: true,
		}, nil
	}
	if len(cp.Code) > maxCodeSize {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Code exceeds maximum size of %d bytes", maxCodeSize),
			IsError: true,
		}, nil
	}

	timeout := defaultSnippetTimeout
	if cp.TimeoutSeconds > 0 {
		timeout = time.Duration(cp.TimeoutSeconds) * time.Second
		if timeout > maxSnippetTimeout {
			timeout = maxSnippetTimeout
		}
	}

	result, err := t.runner.Run(ctx, cp.Code, timeout)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Execution failed: %v", err),
			IsError: true,
		}, nil
	}

	body, err := json.MarshalIndent(struct {
		Stdout     string  `json:"stdout"`
		Stderr     string  `json:"stderr"`
		ExitCode   int     `json:"exit_code"`
		DurationMS float64 `json:"duration_ms"`
		TimedOut   bool    `json:"timed_out,omitempty"`
	}{
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		ExitCode:   result.ExitCode,
		DurationMS: float64(result.Duration.Microseconds()) / 1000.0,
		TimedOut:   result.TimedOut,
	}, "", "  ")
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to format result: %v", err),
			IsError: true,
		}, nil
	}

	return &agent.ToolResult{
		Content: string(body),
		IsError: result.ExitCode != 0,
	}, nil
}
