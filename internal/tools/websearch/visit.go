package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/haasonsaas/deepscribe/internal/agent"
)

const (
	// maxURLsPerVisit bounds how many pages a single visit call may fetch
	maxURLsPerVisit = 5

	// maxCharsPerPage caps the extracted content returned per page
	maxCharsPerPage = 8000

	// visitConcurrency limits concurrent page fetches
	visitConcurrency = 3
)

// visitParams is the argument shape for the visit tool.
type visitParams struct {
	URL  []string `json:"url"`
	Goal string   `json:"goal"`
}

// pageVisit holds the outcome of fetching one URL.
type pageVisit struct {
	URL     string `json:"url"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// VisitTool implements the agent.Tool interface for reading web pages.
// Pages are fetched concurrently, stripped to readable text, and capped per
// page so a handful of visits cannot flood the model context.
type VisitTool struct {
	extractor *ContentExtractor
}

// NewVisitTool creates a new page visiting tool.
func NewVisitTool() *VisitTool {
	return &VisitTool{extractor: NewContentExtractor()}
}

// NewVisitToolWithExtractor creates a visit tool with a custom extractor.
// Used in tests to bypass the SSRF guard for local servers.
func NewVisitToolWithExtractor(extractor *ContentExtractor) *VisitTool {
	return &VisitTool{extractor: extractor}
}

func (t *VisitTool) Name() string {
	return "visit"
}

func (t *VisitTool) Description() string {
	return "Visit web pages and extract their readable content. Provide the reading goal so the extracted text can be assessed against it."
}

func (t *VisitTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 1,
				"description": "URLs of the pages to visit."
			},
			"goal": {
				"type": "string",
				"description": "What information you are looking for on these pages."
			}
		},
		"required": ["url", "goal"]
	}`)
}

// Execute fetches the pages concurrently, preserving input order in the
// output. Individual page failures are reported inline without failing the
// whole call.
func (t *VisitTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var vp visitParams
	if err := json.Unmarshal(params, &vp); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}

	urls := normalizeQueries(vp.URL)
	if len(urls) == 0 {
		return &agent.ToolResult{
			Content: "At least one non-empty URL is required",
			IsError: true,
		}, nil
	}
	if strings.TrimSpace(vp.Goal) == "" {
		return &agent.ToolResult{
			Content: "The goal parameter is required",
			IsError: true,
		}, nil
	}
	if len(urls) > maxURLsPerVisit {
		urls = urls[:maxURLsPerVisit]
	}

	visits := make([]pageVisit, len(urls))
	sem := make(chan struct{}, visitConcurrency)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, targetURL string) {
			defer wg.Done()
			defer func() { <-sem }()

			content, err := t.extractor.Extract(ctx, targetURL)
			if err != nil {
				visits[idx] = pageVisit{URL: targetURL, Error: err.Error()}
				return
			}
			if len(content) > maxCharsPerPage {
				content = content[:maxCharsPerPage] + "..."
			}
			visits[idx] = pageVisit{URL: targetURL, Content: content}
		}(i, u)
	}
	wg.Wait()

	output := struct {
		Goal  string      `json:"goal"`
		Pages []pageVisit `json:"pages"`
	}{
		Goal:  vp.Goal,
		Pages: visits,
	}

	body, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to format response: %v", err),
			IsError: true,
		}, nil
	}

	allFailed := true
	for _, v := range visits {
		if v.Error == "" {
			allFailed = false
			break
		}
	}

	return &agent.ToolResult{
		Content: string(body),
		IsError: allFailed,
	}, nil
}
