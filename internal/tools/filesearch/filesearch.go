// Package filesearch provides a tool for finding files in a local
// directory tree by glob pattern, without any external service.
package filesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/deepscribe/internal/agent"
)

const (
	maxMatches        = 20
	maxInlineFileSize = 5000
	maxContentChars   = 2000
)

// searchParams is the argument shape for the local_file_search tool.
type searchParams struct {
	Pattern   string `json:"pattern"`
	Directory string `json:"directory,omitempty"`
}

// fileMatch describes one matched file. Content is included for small
// text files only.
type fileMatch struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

type searchResponse struct {
	Pattern    string      `json:"pattern"`
	Directory  string      `json:"directory"`
	FilesFound int         `json:"files_found"`
	Files      []fileMatch `json:"files"`
}

// Tool searches for files under a fixed root directory. Pattern lookups
// never escape the root, regardless of the directory argument.
type Tool struct {
	root string
}

// NewTool creates a file search tool rooted at the given directory. An
// empty root uses the current working directory.
func NewTool(root string) (*Tool, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("file search root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file search root %s is not a directory", root)
	}
	return &Tool{root: filepath.Clean(root)}, nil
}

func (t *Tool) Name() string {
	return "local_file_search"
}

func (t *Tool) Description() string {
	return "Search for files in the local working directory using glob patterns like *.txt, *.py, or README*. Returns matching paths with contents for small text files."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "Glob pattern to match file names, e.g. *.csv or report*"
			},
			"directory": {
				"type": "string",
				"description": "Subdirectory to search in, relative to the working directory (default: the working directory itself)."
			}
		},
		"required": ["pattern"]
	}`)
}

// Execute matches the pattern against the search directory and returns
// up to 20 files sorted by path. Small text files include their content.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var sp searchParams
	if err := json.Unmarshal(params, &sp); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}
	if strings.TrimSpace(sp.Pattern) == "" {
		return &agent.ToolResult{
			Content: "The pattern parameter is required",
			IsError: true,
		}, nil
	}

	dir, err := t.resolveDir(sp.Directory)
	if err != nil {
		return &agent.ToolResult{
			Content: err.Error(),
			IsError: true,
		}, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, sp.Pattern))
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid pattern %q: %v", sp.Pattern, err),
			IsError: true,
		}, nil
	}
	sort.Strings(matches)

	resp := searchResponse{
		Pattern:    sp.Pattern,
		Directory:  dir,
		FilesFound: len(matches),
		Files:      []fileMatch{},
	}

	for _, path := range matches {
		if len(resp.Files) >= maxMatches {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp.Files = append(resp.Files, describeFile(path))
	}

	body, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to format result: %v", err),
			IsError: true,
		}, nil
	}
	return &agent.ToolResult{Content: string(body)}, nil
}

// resolveDir maps the optional directory argument onto a path under the
// root, rejecting absolute paths and parent traversal.
func (t *Tool) resolveDir(dir string) (string, error) {
	if dir == "" {
		return t.root, nil
	}
	if filepath.IsAbs(dir) || !filepath.IsLocal(dir) {
		return "", fmt.Errorf("directory %q must be a relative path inside the working directory", dir)
	}
	resolved := filepath.Join(t.root, dir)
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return resolved, nil
}

func describeFile(path string) fileMatch {
	match := fileMatch{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		match.Error = err.Error()
		return match
	}
	match.Size = info.Size()

	if info.IsDir() || info.Size() > maxInlineFileSize {
		return match
	}

	data, err := os.ReadFile(path)
	if err != nil {
		match.Error = err.Error()
		return match
	}
	if !utf8.Valid(data) {
		return match
	}

	content := string(data)
	if len(content) > maxContentChars {
		content = content[:maxContentChars] + "..."
	}
	match.Content = content
	return match
}

var _ agent.Tool = (*Tool)(nil)
