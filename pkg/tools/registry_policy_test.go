package tools

import (
	"context"
	"strings"
	"testing"
)

// stubTool is a minimal Tool for exercising registry policy checks without
// depending on any of the real tool implementations.
type stubTool struct {
	name   string
	result string
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub tool for policy tests" }
func (t *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *stubTool) Execute(_ context.Context, _ map[string]interface{}) (string, error) {
	return t.result, nil
}

func TestRegistryExecutionPolicy(t *testing.T) {
	t.Run("a denied tool is blocked with a policy error", func(t *testing.T) {
		r := NewToolRegistry()
		r.Register(&stubTool{name: "exec", result: "ran"})
		r.SetExecutionPolicy(NewToolExecutionPolicy(true, nil, []string{"exec"}))

		_, err := r.Execute(context.Background(), "exec", map[string]interface{}{})
		if err == nil {
			t.Fatal("expected the deny-listed tool to be blocked")
		}
		if !strings.Contains(err.Error(), "blocked by policy") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("an allowlist blocks everything not explicitly listed", func(t *testing.T) {
		r := NewToolRegistry()
		r.Register(&stubTool{name: "memory_search", result: "found 2 notes"})
		r.Register(&stubTool{name: "exec", result: "ran"})
		r.SetExecutionPolicy(NewToolExecutionPolicy(true, []string{"memory_search"}, nil))

		if _, err := r.Execute(context.Background(), "memory_search", map[string]interface{}{}); err != nil {
			t.Fatalf("expected the allowlisted tool to run, got: %v", err)
		}

		_, err := r.Execute(context.Background(), "exec", map[string]interface{}{})
		if err == nil {
			t.Fatal("expected a tool outside the allowlist to be blocked")
		}
		if !strings.Contains(err.Error(), "not allowed by policy") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("a disabled policy lets everything through, deny list included", func(t *testing.T) {
		r := NewToolRegistry()
		r.Register(&stubTool{name: "exec", result: "ran"})
		r.SetExecutionPolicy(NewToolExecutionPolicy(false, nil, []string{"exec"}))

		result, err := r.Execute(context.Background(), "exec", map[string]interface{}{})
		if err != nil {
			t.Fatalf("expected success with the policy disabled, got: %v", err)
		}
		if result != "ran" {
			t.Fatalf("result = %q, want ran", result)
		}
	})
}
