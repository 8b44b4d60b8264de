// Package main provides the CLI entry point for the DeepScribe research
// service.
//
// DeepScribe runs an LLM-driven research loop with web search, scholarly
// search, page visiting, and code execution tools, and exposes it over an
// HTTP API with batch and streaming endpoints.
//
// # Basic Usage
//
// Start the server:
//
//	deepscribe serve --config deepscribe.yaml
//
// Run a one-shot research query from the terminal:
//
//	deepscribe run "What drove the 2024 semiconductor supply recovery?"
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deepscribe",
		Short: "DeepScribe - LLM research agent service",
		Long: `DeepScribe drives an LLM research loop with live tools and serves it
over HTTP.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT)
Available tools: Web Search, Google Scholar, Page Visiting, Code Execution`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRunCmd(),
		buildTemplatesCmd(),
	)

	return rootCmd
}
