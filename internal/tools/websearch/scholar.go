package websearch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/deepscribe/internal/agent"
)

// ScholarTool implements the agent.Tool interface for scholarly literature
// search. SearXNG instances expose a science category that federates
// academic indexes; when no instance is configured, queries are scoped to
// Google Scholar through the general web backend.
type ScholarTool struct {
	s *searcher
}

// NewScholarTool creates a new scholarly search tool.
func NewScholarTool(config *Config) *ScholarTool {
	return &ScholarTool{s: newSearcher(config)}
}

func (t *ScholarTool) Name() string {
	return "google_scholar"
}

func (t *ScholarTool) Description() string {
	return "Search academic literature for papers, citations, and scholarly sources. Accepts multiple queries in a single call."
}

func (t *ScholarTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 1,
				"description": "Academic search queries, e.g. paper titles, author names, or research topics."
			}
		},
		"required": ["query"]
	}`)
}

// Execute runs the queries against the scholarly index concurrently.
func (t *ScholarTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var scholarParams searchParams
	if err := json.Unmarshal(params, &scholarParams); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}

	queries := normalizeQueries(scholarParams.Query)
	if len(queries) == 0 {
		return &agent.ToolResult{
			Content: "At least one non-empty query is required",
			IsError: true,
		}, nil
	}

	if t.s.config.SearXNGURL == "" {
		for i, q := range queries {
			queries[i] = "site:scholar.google.com " + q
		}
	}

	responses := t.s.searchAll(ctx, queries, "science")
	return formatResponses(responses), nil
}
