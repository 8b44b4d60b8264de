// Package config loads and validates the service configuration from YAML
// with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for DeepScribe.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	Tools   ToolsConfig   `yaml:"tools"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

type AgentConfig struct {
	Model           string        `yaml:"model"`
	MaxTokens       int           `yaml:"max_tokens"`
	MaxIterations   int           `yaml:"max_iterations"`
	WallClockBudget time.Duration `yaml:"wall_clock_budget"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

type ToolsConfig struct {
	Enabled    []string         `yaml:"enabled"`
	WebSearch  WebSearchConfig  `yaml:"websearch"`
	Code       CodeConfig       `yaml:"code"`
	FileSearch FileSearchConfig `yaml:"filesearch"`
}

type WebSearchConfig struct {
	SearXNGURL  string `yaml:"searxng_url"`
	BraveAPIKey string `yaml:"brave_api_key"`
	Backend     string `yaml:"backend"`
	CacheTTL    int    `yaml:"cache_ttl"`
}

type CodeConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Interpreter string `yaml:"interpreter"`
	Workspace   string `yaml:"workspace"`
}

type FileSearchConfig struct {
	// Root is the directory file searches are confined to. Empty uses
	// the process working directory.
	Root string `yaml:"root"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file. Environment variables in
// the file are expanded before parsing, so keys can be referenced as
// ${ANTHROPIC_API_KEY}.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with all defaults applied and provider
// keys taken from the environment.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	fillProviderFromEnv(cfg, "anthropic", "ANTHROPIC_API_KEY")
	fillProviderFromEnv(cfg, "openai", "OPENAI_API_KEY")

	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 15
	}
	if cfg.Agent.WallClockBudget == 0 {
		cfg.Agent.WallClockBudget = 10 * time.Minute
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 4096
	}
	if cfg.Agent.MaxRetries == 0 {
		cfg.Agent.MaxRetries = 3
	}
	if cfg.Agent.RetryDelay == 0 {
		cfg.Agent.RetryDelay = time.Second
	}

	if len(cfg.Tools.Enabled) == 0 {
		cfg.Tools.Enabled = []string{"search", "google_scholar", "visit"}
	}
	if cfg.Tools.Code.Interpreter == "" {
		cfg.Tools.Code.Interpreter = "python3"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// fillProviderFromEnv seeds a provider's API key from the environment when
// the config file leaves it empty.
func fillProviderFromEnv(cfg *Config, provider, envVar string) {
	pc := cfg.LLM.Providers[provider]
	if pc.APIKey == "" {
		pc.APIKey = os.Getenv(envVar)
	}
	cfg.LLM.Providers[provider] = pc
}

// Validate checks that the configuration can actually drive the service.
func (c *Config) Validate() error {
	pc, ok := c.LLM.Providers[c.LLM.DefaultProvider]
	if !ok || pc.APIKey == "" {
		return fmt.Errorf("no API key configured for default provider %q", c.LLM.DefaultProvider)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}
