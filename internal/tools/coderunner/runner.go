// Package coderunner executes model-authored code snippets in a scratch
// workspace with bounded output and wall-clock limits.
package coderunner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Runner executes snippets through an interpreter inside a scratch
// workspace directory.
type Runner struct {
	interpreter string
	workspace   string
	maxOutput   int
}

// RunnerConfig holds configuration for the snippet runner.
type RunnerConfig struct {
	// Interpreter is the command used to run snippets. Default: python3
	Interpreter string

	// Workspace is the directory snippets run in. Defaults to a
	// per-runner directory under the OS temp dir.
	Workspace string

	// MaxOutput caps captured stdout and stderr, each. Default: 64000
	MaxOutput int
}

// NewRunner creates a snippet runner, creating the workspace directory if
// needed.
func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Interpreter == "" {
		config.Interpreter = "python3"
	}
	if config.MaxOutput == 0 {
		config.MaxOutput = 64000
	}
	if config.Workspace == "" {
		config.Workspace = filepath.Join(os.TempDir(), "deepscribe-code-"+uuid.NewString())
	}
	if err := os.MkdirAll(config.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Runner{
		interpreter: config.Interpreter,
		workspace:   config.Workspace,
		maxOutput:   config.MaxOutput,
	}, nil
}

// RunResult summarizes a snippet execution.
type RunResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// Run writes the snippet to a file in the workspace and executes it with
// the interpreter under the given timeout.
func (r *Runner) Run(ctx context.Context, code string, timeout time.Duration) (RunResult, error) {
	if code == "" {
		return RunResult{}, fmt.Errorf("code is required")
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	scriptPath := filepath.Join(r.workspace, "snippet-"+uuid.NewString()+".py")
	if err := os.WriteFile(scriptPath, []byte(code), 0o644); err != nil {
		return RunResult{}, fmt.Errorf("write snippet: %w", err)
	}
	defer os.Remove(scriptPath)

	cmd := exec.CommandContext(runCtx, r.interpreter, scriptPath)
	cmd.Dir = r.workspace

	stdout := newLimitedBuffer(r.maxOutput)
	stderr := newLimitedBuffer(r.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()

	result := RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		ExitCode: exitCode(err),
	}
	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
	}

	return result, nil
}

// Workspace returns the directory snippets execute in.
func (r *Runner) Workspace() string {
	return r.workspace
}

// limitedBuffer caps captured output, silently discarding the overflow.
type limitedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && len(b.buf) >= b.max {
		return len(p), nil
	}
	remaining := b.max - len(b.buf)
	if b.max > 0 && len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
