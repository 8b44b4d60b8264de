package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/deepscribe/internal/agent"
	"github.com/haasonsaas/deepscribe/internal/templates"
	"github.com/haasonsaas/deepscribe/pkg/models"
)

// buildRunCmd creates the "run" command for one-shot research from the
// terminal.
func buildRunCmd() *cobra.Command {
	var (
		configPath   string
		instructions string
		templateID   string
		tools        []string
		jsonOutput   bool
		showEvents   bool
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Run a single research query",
		Long: `Run a research query to completion and print the answer.

With --events, intermediate progress (thinking, tool calls, tool results)
is printed as it happens. With --json, the full aggregated result is
printed as JSON.`,
		Example: `  # Plain answer
  deepscribe run "What changed in Go 1.24 garbage collection?"

  # Watch the loop work
  deepscribe run --events "Compare Rust and Go async runtimes"

  # Use a document template
  deepscribe run --template market-analysis "EV charging market in Europe"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(cmd.Context(), runOptions{
				configPath:   configPath,
				query:        args[0],
				instructions: instructions,
				templateID:   templateID,
				tools:        tools,
				jsonOutput:   jsonOutput,
				showEvents:   showEvents,
				debug:        debug,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deepscribe.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&instructions, "instructions", "i", "", "Additional instructions for the researcher")
	cmd.Flags().StringVarP(&templateID, "template", "t", "", "Document template ID (see 'deepscribe templates')")
	cmd.Flags().StringSliceVar(&tools, "tools", nil, "Restrict the tool set (default: all registered tools)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&showEvents, "events", false, "Print intermediate events while researching")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

type runOptions struct {
	configPath   string
	query        string
	instructions string
	templateID   string
	tools        []string
	jsonOutput   bool
	showEvents   bool
	debug        bool
}

func runResearch(ctx context.Context, opts runOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg, opts.debug)

	loop, err := buildLoop(cfg, logger, nil)
	if err != nil {
		return err
	}

	instructions := strings.TrimSpace(opts.instructions)
	if guidance := templates.Guidance(opts.templateID); guidance != "" {
		if instructions != "" {
			instructions += "\n\n"
		}
		instructions += guidance
	}

	req := agent.Request{
		Query:              opts.query,
		CustomInstructions: instructions,
		EnabledTools:       opts.tools,
	}

	if opts.showEvents {
		return runStreaming(ctx, loop, req)
	}

	result, err := loop.RunAggregate(ctx, req)
	if err != nil {
		return err
	}
	return printResult(result, opts.jsonOutput)
}

func runStreaming(ctx context.Context, loop *agent.ResearchLoop, req agent.Request) error {
	inv, err := loop.Run(ctx, req)
	if err != nil {
		return err
	}

	var failure *models.Event
	for event := range inv.Events {
		printEvent(event)
		if event.Type == models.EventError {
			failure = event
		}
	}
	if failure != nil {
		return fmt.Errorf("research failed: %s", failure.ErrorDetail)
	}
	return nil
}

func printEvent(event *models.Event) {
	switch event.Type {
	case models.EventThinking:
		fmt.Fprintf(os.Stderr, "[%d] thinking: %s\n", event.Iteration, truncate(event.Content, 200))
	case models.EventToolStart:
		fmt.Fprintf(os.Stderr, "[%d] tool %s starting\n", event.Iteration, event.ToolName)
	case models.EventToolResult:
		status := "ok"
		if event.ToolError {
			status = "error"
		}
		fmt.Fprintf(os.Stderr, "[%d] tool %s finished (%s)\n", event.Iteration, event.ToolName, status)
	case models.EventAgentMessage:
		fmt.Fprintf(os.Stderr, "[%d] note: %s\n", event.Iteration, truncate(event.Content, 200))
	case models.EventComplete:
		fmt.Println(event.Content)
	case models.EventError:
		fmt.Fprintf(os.Stderr, "research failed: %s: %s\n", event.ErrorCategory, event.ErrorDetail)
	}
}

func printResult(result *agent.Result, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if !result.Success {
		return fmt.Errorf("research failed after %d iterations: %s", result.Iterations, result.Error)
	}
	fmt.Println(result.FinalAnswer)
	return nil
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// buildTemplatesCmd creates the "templates" command listing document
// templates and their clarification questions.
func buildTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List available document templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, tmpl := range templates.List() {
				fmt.Printf("%s\t%s\n", tmpl.ID, tmpl.DisplayName)
				for _, q := range tmpl.Clarifications {
					fmt.Printf("    - %s\n", q)
				}
			}
			return nil
		},
	}
}
