package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/deepscribe/internal/observability"
	"github.com/haasonsaas/deepscribe/pkg/models"
)

// GatewayConfig configures a ModelGateway.
type GatewayConfig struct {
	// Model is the model identifier passed to the provider. Empty uses
	// the provider default.
	Model string

	// MaxTokens caps the response length. 0 uses the provider default.
	MaxTokens int

	// MaxRetries bounds retries of retryable provider failures.
	// Default: 3
	MaxRetries int

	// RetryDelay is the initial backoff between retries. Default: 1s
	RetryDelay time.Duration
}

func (c *GatewayConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
}

// ModelGateway adapts a single think step to an LLMProvider, normalizing
// its streamed output into a ModelTurn regardless of provider-specific
// response format. Provider failures classified as retryable are retried
// with exponential backoff up to a bounded count; everything else is
// surfaced to the loop as-is.
type ModelGateway struct {
	provider LLMProvider
	config   GatewayConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewModelGateway creates a gateway over the given provider.
func NewModelGateway(provider LLMProvider, config GatewayConfig, logger *slog.Logger) (*ModelGateway, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.applyDefaults()
	return &ModelGateway{
		provider: provider,
		config:   config,
		logger:   logger,
	}, nil
}

// Provider returns the underlying provider name.
func (g *ModelGateway) Provider() string {
	return g.provider.Name()
}

// SetMetrics attaches request and token metrics. Nil disables recording.
func (g *ModelGateway) SetMetrics(m *observability.Metrics) {
	g.metrics = m
}

func (g *ModelGateway) modelLabel() string {
	if g.config.Model != "" {
		return g.config.Model
	}
	return "default"
}

// recordRequest observes one provider attempt: latency, outcome, and
// any token usage the provider reported.
func (g *ModelGateway) recordRequest(elapsed time.Duration, turn *ModelTurn, err error) {
	if g.metrics == nil {
		return
	}
	provider := g.provider.Name()
	model := g.modelLabel()

	status := "success"
	if err != nil {
		status = "error"
	}
	g.metrics.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	g.metrics.LLMRequestDuration.WithLabelValues(provider, model).Observe(elapsed.Seconds())

	if turn != nil {
		if turn.InputTokens > 0 {
			g.metrics.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(turn.InputTokens))
		}
		if turn.OutputTokens > 0 {
			g.metrics.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(turn.OutputTokens))
		}
	}
}

// Think sends the transcript plus tool specs to the model and collects
// the streamed response into a ModelTurn. Malformed tool-call arguments
// are reported through the turn's ParseError marker rather than an
// error return, so the loop can decide between a re-ask and a terminal
// failure.
func (g *ModelGateway) Think(ctx context.Context, system string, transcript []models.Message, specs []ToolSpec) (*ModelTurn, error) {
	req := &CompletionRequest{
		Model:     g.config.Model,
		System:    system,
		Messages:  transcript,
		Tools:     specs,
		MaxTokens: g.config.MaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.config.RetryDelay * time.Duration(1<<uint(attempt-1))
			g.logger.Warn("provider retry",
				"provider", g.provider.Name(),
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		turn, err := g.completeOnce(ctx, req)
		g.recordRequest(time.Since(start), turn, err)
		if err == nil {
			return turn, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isProviderRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("provider %s unavailable after %d retries: %w",
		g.provider.Name(), g.config.MaxRetries, lastErr)
}

func (g *ModelGateway) completeOnce(ctx context.Context, req *CompletionRequest) (*ModelTurn, error) {
	chunks, err := g.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	turn := &ModelTurn{}
	var text strings.Builder

	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		turn.InputTokens += chunk.InputTokens
		turn.OutputTokens += chunk.OutputTokens
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
		}
		if chunk.ToolCall != nil {
			call := *chunk.ToolCall
			if len(call.Arguments) == 0 {
				call.Arguments = json.RawMessage(`{}`)
			}
			if !json.Valid(call.Arguments) {
				turn.ParseError = fmt.Errorf("%w: tool call %s (%s) carries invalid JSON arguments",
					ErrMalformedOutput, call.ID, call.Name)
				continue
			}
			turn.ToolCalls = append(turn.ToolCalls, call)
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	turn.Content = text.String()
	return turn, nil
}

// retryableError is implemented by provider errors that know whether a
// retry may succeed.
type retryableError interface {
	Retryable() bool
}

func isProviderRetryable(err error) bool {
	var re retryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return classifyToolError(err).IsRetryable()
}
