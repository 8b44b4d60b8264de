package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/haasonsaas/deepscribe/internal/agent"
	"github.com/haasonsaas/deepscribe/internal/agent/providers"
	"github.com/haasonsaas/deepscribe/internal/config"
	"github.com/haasonsaas/deepscribe/internal/observability"
	"github.com/haasonsaas/deepscribe/internal/tools/coderunner"
	"github.com/haasonsaas/deepscribe/internal/tools/filesearch"
	"github.com/haasonsaas/deepscribe/internal/tools/websearch"
)

// loadConfig reads the config file if present, otherwise builds one from
// defaults and the environment.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newLogger builds the process logger from the logging config.
func newLogger(cfg *config.Config, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	} else if cfg.Logging.Level == "warn" {
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// buildProvider constructs the configured default LLM provider.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	name := cfg.LLM.DefaultProvider
	pc := cfg.LLM.Providers[name]

	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// buildRegistry registers the research tools enabled by the config.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*agent.ToolRegistry, error) {
	registry := agent.NewToolRegistry()

	searchConfig := &websearch.Config{
		SearXNGURL:  cfg.Tools.WebSearch.SearXNGURL,
		BraveAPIKey: cfg.Tools.WebSearch.BraveAPIKey,
		CacheTTL:    cfg.Tools.WebSearch.CacheTTL,
	}
	if cfg.Tools.WebSearch.Backend != "" {
		searchConfig.DefaultBackend = websearch.SearchBackend(cfg.Tools.WebSearch.Backend)
	}

	enabled := make(map[string]bool, len(cfg.Tools.Enabled))
	for _, name := range cfg.Tools.Enabled {
		enabled[strings.TrimSpace(name)] = true
	}

	if enabled["search"] {
		if err := registry.Register(websearch.NewSearchTool(searchConfig)); err != nil {
			return nil, err
		}
	}
	if enabled["google_scholar"] {
		if err := registry.Register(websearch.NewScholarTool(searchConfig)); err != nil {
			return nil, err
		}
	}
	if enabled["visit"] {
		if err := registry.Register(websearch.NewVisitTool()); err != nil {
			return nil, err
		}
	}
	if enabled["local_file_search"] {
		fileSearch, err := filesearch.NewTool(cfg.Tools.FileSearch.Root)
		if err != nil {
			return nil, fmt.Errorf("file search: %w", err)
		}
		if err := registry.Register(fileSearch); err != nil {
			return nil, err
		}
	}
	if enabled["code"] || cfg.Tools.Code.Enabled {
		runner, err := coderunner.NewRunner(coderunner.RunnerConfig{
			Interpreter: cfg.Tools.Code.Interpreter,
			Workspace:   cfg.Tools.Code.Workspace,
		})
		if err != nil {
			return nil, fmt.Errorf("code runner: %w", err)
		}
		if err := registry.Register(coderunner.NewCodeTool(runner)); err != nil {
			return nil, err
		}
	}

	logger.Info("tools registered", "tools", registry.Names())
	return registry, nil
}

// buildLoop wires the provider, registry, and loop configuration into a
// ready research loop. A nil metrics disables instrumentation.
func buildLoop(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*agent.ResearchLoop, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	modelGateway, err := agent.NewModelGateway(provider, agent.GatewayConfig{
		Model:      cfg.Agent.Model,
		MaxTokens:  cfg.Agent.MaxTokens,
		MaxRetries: cfg.Agent.MaxRetries,
		RetryDelay: cfg.Agent.RetryDelay,
	}, logger)
	if err != nil {
		return nil, err
	}
	modelGateway.SetMetrics(metrics)

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	executor := agent.NewExecutor(registry, nil)
	executor.SetMetrics(metrics)

	loopConfig := &agent.LoopConfig{
		MaxIterations:   cfg.Agent.MaxIterations,
		WallClockBudget: cfg.Agent.WallClockBudget,
	}

	return agent.NewResearchLoop(modelGateway, registry, executor, loopConfig, logger)
}
