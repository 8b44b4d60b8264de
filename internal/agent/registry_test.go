package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRegistryRegisterDuplicate(t *testing.T) {
	registry := NewToolRegistry()
	if err := registry.Register(&fakeTool{name: "search"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := registry.Register(&fakeTool{name: "search"})
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestRegistryListSpecsCatalogOrder(t *testing.T) {
	registry := NewToolRegistry()
	for _, name := range []string{"search", "visit", "google_scholar", "code"} {
		if err := registry.Register(&fakeTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	specs := registry.ListSpecs(nil)
	if len(specs) != 4 {
		t.Fatalf("expected 4 specs, got %d", len(specs))
	}
	want := []string{"search", "visit", "google_scholar", "code"}
	for i, spec := range specs {
		if spec.Name != want[i] {
			t.Errorf("spec %d: got %q, want %q", i, spec.Name, want[i])
		}
	}
}

func TestRegistryListSpecsFilter(t *testing.T) {
	registry := NewToolRegistry()
	for _, name := range []string{"search", "visit", "code"} {
		if err := registry.Register(&fakeTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	// Unknown names filter silently; order stays catalog order.
	specs := registry.ListSpecs([]string{"code", "search", "nonexistent"})
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].Name != "search" || specs[1].Name != "code" {
		t.Errorf("expected catalog-ordered [search code], got [%s %s]", specs[0].Name, specs[1].Name)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	registry := NewToolRegistry()
	result, err := registry.Execute(context.Background(), "ghost", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(result.Content, "unknown tool") {
		t.Errorf("unexpected content %q", result.Content)
	}
}

func TestRegistryExecuteValidatesSchema(t *testing.T) {
	registry := NewToolRegistry()
	var executed bool
	tool := &fakeTool{
		name:   "search",
		schema: `{"type":"object","properties":{"query":{"type":"array","items":{"type":"string"}}},"required":["query"]}`,
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			executed = true
			return &ToolResult{Content: "ok"}, nil
		},
	}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := registry.Execute(context.Background(), "search", json.RawMessage(`{"query":"not an array"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected validation failure result")
	}
	if executed {
		t.Fatal("tool must not run on invalid arguments")
	}

	result, err = registry.Execute(context.Background(), "search", json.RawMessage(`{"query":["golang"]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got %q", result.Content)
	}
	if !executed {
		t.Fatal("tool should run on valid arguments")
	}
}

func TestRegistryExecuteEmptyArgsAgainstRequiredSchema(t *testing.T) {
	registry := NewToolRegistry()
	tool := &fakeTool{
		name:   "search",
		schema: `{"type":"object","properties":{"query":{"type":"array"}},"required":["query"]}`,
	}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := registry.Execute(context.Background(), "search", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("missing required argument must fail validation")
	}
}

func TestRegistryExecuteOversizedInputs(t *testing.T) {
	registry := NewToolRegistry()
	longName := strings.Repeat("a", MaxToolNameLength+1)
	result, err := registry.Execute(context.Background(), longName, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for oversized name")
	}
}
