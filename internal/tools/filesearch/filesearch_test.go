package filesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestTool(t *testing.T) (*Tool, string) {
	t.Helper()
	root := t.TempDir()
	tool, err := NewTool(root)
	if err != nil {
		t.Fatalf("new tool: %v", err)
	}
	return tool, root
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func runSearch(t *testing.T, tool *Tool, params string) searchResponse {
	t.Helper()
	result, err := tool.Execute(context.Background(), json.RawMessage(params))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content)
	}
	var resp searchResponse
	if err := json.Unmarshal([]byte(result.Content), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestFileSearchSchema(t *testing.T) {
	tool, _ := newTestTool(t)

	if tool.Name() != "local_file_search" {
		t.Errorf("unexpected tool name %q", tool.Name())
	}

	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "pattern" {
		t.Errorf("expected pattern to be the only required field, got %v", schema.Required)
	}
}

func TestFileSearchMatchesSortedByPath(t *testing.T) {
	tool, root := newTestTool(t)
	writeFile(t, root, "beta.txt", "second")
	writeFile(t, root, "alpha.txt", "first")
	writeFile(t, root, "notes.md", "skip me")

	resp := runSearch(t, tool, `{"pattern":"*.txt"}`)

	if resp.FilesFound != 2 {
		t.Fatalf("expected 2 matches, got %d", resp.FilesFound)
	}
	if !strings.HasSuffix(resp.Files[0].Path, "alpha.txt") || !strings.HasSuffix(resp.Files[1].Path, "beta.txt") {
		t.Errorf("expected matches sorted by path, got %+v", resp.Files)
	}
}

func TestFileSearchIncludesSmallFileContent(t *testing.T) {
	tool, root := newTestTool(t)
	writeFile(t, root, "small.txt", "hello world")
	writeFile(t, root, "big.txt", strings.Repeat("x", maxInlineFileSize+1))

	resp := runSearch(t, tool, `{"pattern":"*.txt"}`)

	for _, f := range resp.Files {
		switch {
		case strings.HasSuffix(f.Path, "small.txt"):
			if f.Content != "hello world" {
				t.Errorf("expected content for small file, got %q", f.Content)
			}
		case strings.HasSuffix(f.Path, "big.txt"):
			if f.Content != "" {
				t.Error("content must be omitted for files over the inline limit")
			}
		}
	}
}

func TestFileSearchTruncatesLongContent(t *testing.T) {
	tool, root := newTestTool(t)
	writeFile(t, root, "long.txt", strings.Repeat("a", maxContentChars+500))

	resp := runSearch(t, tool, `{"pattern":"long.txt"}`)

	content := resp.Files[0].Content
	if len(content) != maxContentChars+3 || !strings.HasSuffix(content, "...") {
		t.Errorf("expected truncated content of %d chars, got %d", maxContentChars+3, len(content))
	}
}

func TestFileSearchNoMatches(t *testing.T) {
	tool, _ := newTestTool(t)

	resp := runSearch(t, tool, `{"pattern":"*.csv"}`)
	if resp.FilesFound != 0 || len(resp.Files) != 0 {
		t.Errorf("expected empty result, got %+v", resp)
	}
}

func TestFileSearchSubdirectory(t *testing.T) {
	tool, root := newTestTool(t)
	sub := filepath.Join(root, "data")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, sub, "inner.txt", "nested")
	writeFile(t, root, "outer.txt", "top")

	resp := runSearch(t, tool, `{"pattern":"*.txt","directory":"data"}`)

	if resp.FilesFound != 1 || !strings.HasSuffix(resp.Files[0].Path, "inner.txt") {
		t.Errorf("expected only the nested file, got %+v", resp.Files)
	}
}

func TestFileSearchRejectsEscapingDirectory(t *testing.T) {
	tool, _ := newTestTool(t)

	for _, dir := range []string{"../outside", "/etc", "a/../../b"} {
		params, _ := json.Marshal(searchParams{Pattern: "*", Directory: dir})
		result, err := tool.Execute(context.Background(), params)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !result.IsError {
			t.Errorf("directory %q should be rejected", dir)
		}
	}
}

func TestFileSearchRequiresPattern(t *testing.T) {
	tool, _ := newTestTool(t)

	for _, params := range []string{`{}`, `{"pattern":"  "}`, `not json`} {
		result, err := tool.Execute(context.Background(), json.RawMessage(params))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !result.IsError {
			t.Errorf("params %q should produce an error result", params)
		}
	}
}

func TestFileSearchCapsMatchCount(t *testing.T) {
	tool, root := newTestTool(t)
	for i := 0; i < maxMatches+5; i++ {
		writeFile(t, root, fmt.Sprintf("f%02d.txt", i), "x")
	}

	resp := runSearch(t, tool, `{"pattern":"*.txt"}`)

	if len(resp.Files) > maxMatches {
		t.Errorf("expected at most %d files listed, got %d", maxMatches, len(resp.Files))
	}
	if resp.FilesFound <= maxMatches {
		t.Errorf("files_found should report the full match count, got %d", resp.FilesFound)
	}
}
