package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/deepscribe/internal/gateway"
	"github.com/haasonsaas/deepscribe/internal/observability"
)

// buildServeCmd creates the "serve" command that starts the HTTP server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the DeepScribe research server",
		Long: `Start the DeepScribe HTTP server.

The server will:
1. Load configuration from the specified file (or defaults)
2. Initialize the configured LLM provider
3. Register the enabled research tools
4. Serve the research API with batch and streaming endpoints

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  deepscribe serve

  # Start with custom config
  deepscribe serve --config /etc/deepscribe/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deepscribe.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg, debug)

	metrics := observability.NewMetrics(nil)
	loop, err := buildLoop(cfg, logger, metrics)
	if err != nil {
		return err
	}

	server, err := gateway.NewServer(cfg, loop, metrics, logger)
	if err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "context cancelled")
	}

	server.Shutdown(nil)
	return nil
}
