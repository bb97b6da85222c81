package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/tinyclaw/tinyclaw/pkg/providers"
)

type fastMockProvider struct{}

func (p *fastMockProvider) Chat(_ context.Context, _ []providers.Message, _ []providers.ToolDefinition, _ string, _ map[string]interface{}) (*providers.LLMResponse, error) {
	return &providers.LLMResponse{Content: "ok"}, nil
}

func (p *fastMockProvider) GetDefaultModel() string { return "test-model" }

func TestSpawnTool_Name(t *testing.T) {
	tool := NewSpawnTool(nil)
	if tool.Name() != "spawn" {
		t.Errorf("Name() = %q, want %q", tool.Name(), "spawn")
	}
}

func TestSpawnTool_Execute(t *testing.T) {
	t.Run("spawn requires a task", func(t *testing.T) {
		tool := NewSpawnTool(nil)
		_, err := tool.Execute(context.Background(), map[string]interface{}{})
		if err == nil {
			t.Fatal("expected an error for a missing task")
		}
	})

	t.Run("spawn reports the subagent manager is unconfigured", func(t *testing.T) {
		tool := NewSpawnTool(nil)
		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"task": "research flight prices to Lisbon",
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !strings.Contains(result, "not configured") {
			t.Errorf("result = %q, want a not-configured message", result)
		}
	})

	t.Run("status requires a task_id", func(t *testing.T) {
		mgr := NewSubagentManager(&fastMockProvider{}, "test-model", t.TempDir(), nil)
		tool := NewSpawnTool(mgr)
		_, err := tool.Execute(context.Background(), map[string]interface{}{"action": "status"})
		if err == nil {
			t.Fatal("expected an error for a missing task_id")
		}
	})

	t.Run("status reports an unknown task_id without erroring", func(t *testing.T) {
		mgr := NewSubagentManager(&fastMockProvider{}, "test-model", t.TempDir(), nil)
		tool := NewSpawnTool(mgr)
		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"action":  "status",
			"task_id": "does-not-exist",
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !strings.Contains(result, "not found") {
			t.Errorf("result = %q, want a not-found message", result)
		}
	})

	t.Run("list reports no tasks before anything is spawned", func(t *testing.T) {
		mgr := NewSubagentManager(&fastMockProvider{}, "test-model", t.TempDir(), nil)
		tool := NewSpawnTool(mgr)
		result, err := tool.Execute(context.Background(), map[string]interface{}{"action": "list"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !strings.Contains(result, "No") {
			t.Errorf("result = %q, want a no-tasks message", result)
		}
	})

	t.Run("an unknown action is rejected", func(t *testing.T) {
		mgr := NewSubagentManager(&fastMockProvider{}, "test-model", t.TempDir(), nil)
		tool := NewSpawnTool(mgr)
		_, err := tool.Execute(context.Background(), map[string]interface{}{"action": "teleport"})
		if err == nil {
			t.Fatal("expected an error for an unrecognized action")
		}
	})
}

func TestSpawnTool_SetContextConcurrentWithExecute(t *testing.T) {
	// A nil bus means subagent tasks don't try to publish messages during the test.
	mgr := NewSubagentManager(&fastMockProvider{}, "test-model", t.TempDir(), nil)
	tool := NewSpawnTool(mgr)
	tool.SetContext("telegram", "init")

	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			tool.SetContext("telegram", fmt.Sprintf("chat-%d", i))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = tool.Execute(ctx, map[string]interface{}{
				"task": "summarize today's unread messages",
			})
		}
	}()

	wg.Wait()
}
