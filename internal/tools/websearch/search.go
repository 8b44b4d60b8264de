// Package websearch provides the research tools that reach the public web:
// batched web search, scholarly search, and page visiting with goal-directed
// content extraction.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/deepscribe/internal/agent"
)

// SearchBackend represents the type of search backend to use for web queries.
type SearchBackend string

const (
	BackendSearXNG     SearchBackend = "searxng"
	BackendDuckDuckGo  SearchBackend = "duckduckgo"
	BackendBraveSearch SearchBackend = "brave"

	// maxCacheSize limits the number of cached search responses to prevent
	// unbounded memory growth
	maxCacheSize = 1000

	// maxQueriesPerCall bounds the number of queries a single tool call may
	// fan out to
	maxQueriesPerCall = 5
)

// Config holds configuration for the search tools including backend
// credentials, caching settings, and default behavior.
type Config struct {
	// SearXNG instance base URL
	SearXNGURL string `json:"searxng_url,omitempty"`

	// Brave Search API key
	BraveAPIKey string `json:"brave_api_key,omitempty"`

	// Default backend to use
	DefaultBackend SearchBackend `json:"default_backend"`

	// Default number of results per query
	DefaultResultCount int `json:"default_result_count"`

	// Cache TTL in seconds
	CacheTTL int `json:"cache_ttl"`
}

func (c *Config) applyDefaults() {
	if c.DefaultResultCount == 0 {
		c.DefaultResultCount = 5
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 300
	}
	if c.DefaultBackend == "" {
		if c.SearXNGURL != "" {
			c.DefaultBackend = BackendSearXNG
		} else {
			c.DefaultBackend = BackendDuckDuckGo
		}
	}
}

// searchParams is the argument shape for the search tool. Multiple queries
// fan out concurrently within a single call.
type searchParams struct {
	Query []string `json:"query"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	PublishedAt string `json:"published_at,omitempty"`
}

// SearchResponse holds the results for one query.
type SearchResponse struct {
	Query       string         `json:"query"`
	Results     []SearchResult `json:"results"`
	ResultCount int            `json:"result_count"`
	Backend     SearchBackend  `json:"backend"`
}

// cacheEntry holds a cached search response with expiration.
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// searcher runs a single query against a backend. Shared by the web search
// and scholar tools.
type searcher struct {
	config     *Config
	httpClient *http.Client
	cache      map[string]*cacheEntry
	cacheMu    sync.RWMutex
}

func newSearcher(config *Config) *searcher {
	config.applyDefaults()
	return &searcher{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: make(map[string]*cacheEntry),
	}
}

// SearchTool implements the agent.Tool interface for batched web search.
type SearchTool struct {
	s *searcher
}

// NewSearchTool creates a new web search tool with the given configuration.
func NewSearchTool(config *Config) *SearchTool {
	return &SearchTool{s: newSearcher(config)}
}

// Name returns the tool name for registration with the agent runtime.
func (t *SearchTool) Name() string {
	return "search"
}

// Description returns the tool description.
func (t *SearchTool) Description() string {
	return "Search the web for information. Accepts multiple queries in a single call; distinct queries surface different aspects of a research question."
}

// Schema returns the JSON schema for tool parameters used by LLMs.
func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 1,
				"description": "Search queries. Use multiple queries to cover different aspects of the question."
			}
		},
		"required": ["query"]
	}`)
}

// Execute runs the queries concurrently and returns their combined results.
func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var searchParams searchParams
	if err := json.Unmarshal(params, &searchParams); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}

	queries := normalizeQueries(searchParams.Query)
	if len(queries) == 0 {
		return &agent.ToolResult{
			Content: "At least one non-empty query is required",
			IsError: true,
		}, nil
	}

	responses := t.s.searchAll(ctx, queries, "general")
	return formatResponses(responses), nil
}

// normalizeQueries trims, deduplicates, and caps the query list.
func normalizeQueries(queries []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) == maxQueriesPerCall {
			break
		}
	}
	return out
}

// searchAll fans the queries out concurrently, preserving input order in the
// returned slice. Failed queries yield a response with no results.
func (s *searcher) searchAll(ctx context.Context, queries []string, category string) []*SearchResponse {
	responses := make([]*SearchResponse, len(queries))
	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(idx int, q string) {
			defer wg.Done()
			responses[idx] = s.searchOne(ctx, q, category)
		}(i, query)
	}
	wg.Wait()
	return responses
}

// searchOne runs a single query through the configured backend with a
// DuckDuckGo fallback, consulting the cache first.
func (s *searcher) searchOne(ctx context.Context, query, category string) *SearchResponse {
	cacheKey := fmt.Sprintf("%s:%s:%s", s.config.DefaultBackend, category, query)
	if cached := s.getFromCache(cacheKey); cached != nil {
		return cached
	}

	var response *SearchResponse
	var err error

	switch s.config.DefaultBackend {
	case BackendSearXNG:
		response, err = s.searchSearXNG(ctx, query, category)
	case BackendBraveSearch:
		response, err = s.searchBrave(ctx, query)
	default:
		response, err = s.searchDuckDuckGo(ctx, query)
	}

	if err != nil && s.config.DefaultBackend != BackendDuckDuckGo {
		response, err = s.searchDuckDuckGo(ctx, query)
	}

	if err != nil {
		return &SearchResponse{
			Query:   query,
			Results: []SearchResult{},
			Backend: s.config.DefaultBackend,
		}
	}

	s.putInCache(cacheKey, response)
	return response
}

// formatResponses converts per-query responses to a single ToolResult.
func formatResponses(responses []*SearchResponse) *agent.ToolResult {
	output, err := json.MarshalIndent(responses, "", "  ")
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to format response: %v", err),
			IsError: true,
		}
	}
	return &agent.ToolResult{Content: string(output)}
}

// getFromCache retrieves a cached response if it exists and hasn't expired.
func (s *searcher) getFromCache(key string) *SearchResponse {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	entry, exists := s.cache[key]
	if !exists {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.response
}

// putInCache stores a response in the cache with TTL, evicting expired and
// oldest entries when at capacity.
func (s *searcher) putInCache(key string, response *SearchResponse) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	now := time.Now()

	for k, v := range s.cache {
		if now.After(v.expiresAt) {
			delete(s.cache, k)
		}
	}

	for len(s.cache) >= maxCacheSize {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range s.cache {
			if oldestKey == "" || v.expiresAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.expiresAt
			}
		}
		if oldestKey == "" {
			break
		}
		delete(s.cache, oldestKey)
	}

	s.cache[key] = &cacheEntry{
		response:  response,
		expiresAt: now.Add(time.Duration(s.config.CacheTTL) * time.Second),
	}
}

// searchSearXNG performs a search using a SearXNG instance.
func (s *searcher) searchSearXNG(ctx context.Context, query, category string) (*SearchResponse, error) {
	if s.config.SearXNGURL == "" {
		return nil, fmt.Errorf("SearXNG URL not configured")
	}

	searchURL, err := url.Parse(s.config.SearXNGURL)
	if err != nil {
		return nil, fmt.Errorf("invalid SearXNG URL: %w", err)
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("format", "json")
	values.Set("pageno", "1")
	values.Set("categories", category)

	searchURL.Path = "/search"
	searchURL.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SearXNG returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searxngResp struct {
		Results []struct {
			Title         string `json:"title"`
			URL           string `json:"url"`
			Content       string `json:"content"`
			PublishedDate string `json:"publishedDate,omitempty"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &searxngResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]SearchResult, 0, s.config.DefaultResultCount)
	for i := 0; i < len(searxngResp.Results) && i < s.config.DefaultResultCount; i++ {
		r := searxngResp.Results[i]
		results = append(results, SearchResult{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Content,
			PublishedAt: r.PublishedDate,
		})
	}

	return &SearchResponse{
		Query:       query,
		Results:     results,
		ResultCount: len(results),
		Backend:     BackendSearXNG,
	}, nil
}

// searchDuckDuckGo performs a search using DuckDuckGo's Instant Answer API.
func (s *searcher) searchDuckDuckGo(ctx context.Context, query string) (*SearchResponse, error) {
	instantURL := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, "GET", instantURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DuckDuckGo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ddgResp struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &ddgResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]SearchResult, 0)
	if ddgResp.AbstractText != "" && ddgResp.AbstractURL != "" {
		results = append(results, SearchResult{
			Title:   ddgResp.Heading,
			URL:     ddgResp.AbstractURL,
			Snippet: ddgResp.AbstractText,
		})
	}

	for i := 0; i < len(ddgResp.RelatedTopics) && len(results) < s.config.DefaultResultCount; i++ {
		topic := ddgResp.RelatedTopics[i]
		if topic.FirstURL != "" && topic.Text != "" {
			title := topic.Text
			if len(title) > 100 {
				title = title[:100]
			}
			results = append(results, SearchResult{
				Title:   title,
				URL:     topic.FirstURL,
				Snippet: topic.Text,
			})
		}
	}

	return &SearchResponse{
		Query:       query,
		Results:     results,
		ResultCount: len(results),
		Backend:     BackendDuckDuckGo,
	}, nil
}

// searchBrave performs a search using the Brave Search API.
func (s *searcher) searchBrave(ctx context.Context, query string) (*SearchResponse, error) {
	if s.config.BraveAPIKey == "" {
		return nil, fmt.Errorf("Brave API key not configured")
	}

	searchURL, err := url.Parse("https://api.search.brave.com/res/v1/web/search")
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("count", fmt.Sprintf("%d", s.config.DefaultResultCount))
	searchURL.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.config.BraveAPIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("Brave API returned status %d and failed to read body: %w", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("Brave API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var braveResp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &braveResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]SearchResult, 0, len(braveResp.Web.Results))
	for _, r := range braveResp.Web.Results {
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Description,
		})
	}

	return &SearchResponse{
		Query:       query,
		Results:     results,
		ResultCount: len(results),
		Backend:     BackendBraveSearch,
	}, nil
}
