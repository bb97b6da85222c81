package tools

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinyclaw/tinyclaw/pkg/providers"
)

// probeTool records how many copies of itself are running concurrently,
// optionally panics, and stalls for a configurable delay so batch timing
// and concurrency limits can be exercised deterministically.
type probeTool struct {
	name    string
	delay   time.Duration
	result  string
	panicOn bool

	inFlight *atomic.Int32
	maxSeen  *atomic.Int32
}

func (t *probeTool) Name() string        { return t.name }
func (t *probeTool) Description() string { return "probe tool for executor tests" }
func (t *probeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *probeTool) Execute(ctx context.Context, _ map[string]interface{}) (string, error) {
	if t.panicOn {
		panic("boom")
	}

	if t.inFlight != nil && t.maxSeen != nil {
		current := t.inFlight.Add(1)
		for {
			prev := t.maxSeen.Load()
			if current <= prev || t.maxSeen.CompareAndSwap(prev, current) {
				break
			}
		}
		defer t.inFlight.Add(-1)
	}

	select {
	case <-time.After(t.delay):
		return t.result, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestExecuteToolCalls(t *testing.T) {
	t.Run("a slow tool times out rather than blocking the batch", func(t *testing.T) {
		registry := NewToolRegistry()
		registry.Register(&probeTool{name: "fetch_weather", delay: 300 * time.Millisecond, result: "sunny"})

		results := registry.ExecuteToolCalls(context.Background(), []providers.ToolCall{
			{ID: "tc1", Name: "fetch_weather", Arguments: map[string]interface{}{}},
		}, ExecuteToolCallsOptions{Timeout: 50 * time.Millisecond, MaxParallel: 1})

		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}
		if results[0].ToolCallID != "tc1" {
			t.Fatalf("ToolCallID = %q, want tc1", results[0].ToolCallID)
		}
		if results[0].Content == "sunny" {
			t.Fatalf("expected a timeout error, got success content: %q", results[0].Content)
		}
	})

	t.Run("MaxParallel caps concurrent tool execution", func(t *testing.T) {
		registry := NewToolRegistry()
		inFlight := &atomic.Int32{}
		maxSeen := &atomic.Int32{}

		for i := 1; i <= 4; i++ {
			name := fmt.Sprintf("set_reminder_%d", i)
			registry.Register(&probeTool{
				name:     name,
				delay:    120 * time.Millisecond,
				result:   name + "_ok",
				inFlight: inFlight,
				maxSeen:  maxSeen,
			})
		}

		toolCalls := []providers.ToolCall{
			{ID: "tc1", Name: "set_reminder_1", Arguments: map[string]interface{}{}},
			{ID: "tc2", Name: "set_reminder_2", Arguments: map[string]interface{}{}},
			{ID: "tc3", Name: "set_reminder_3", Arguments: map[string]interface{}{}},
			{ID: "tc4", Name: "set_reminder_4", Arguments: map[string]interface{}{}},
		}

		results := registry.ExecuteToolCalls(context.Background(), toolCalls, ExecuteToolCallsOptions{MaxParallel: 2})
		if len(results) != 4 {
			t.Fatalf("expected 4 results, got %d", len(results))
		}
		if got := maxSeen.Load(); got > 2 {
			t.Fatalf("max concurrent tools = %d, want <= 2", got)
		}
	})

	t.Run("results preserve the original call order regardless of finish order", func(t *testing.T) {
		registry := NewToolRegistry()
		registry.Register(&probeTool{name: "slow_lookup", delay: 80 * time.Millisecond, result: "slow_ok"})
		registry.Register(&probeTool{name: "fast_lookup", delay: 5 * time.Millisecond, result: "fast_ok"})

		results := registry.ExecuteToolCalls(context.Background(), []providers.ToolCall{
			{ID: "first", Name: "slow_lookup", Arguments: map[string]interface{}{}},
			{ID: "second", Name: "fast_lookup", Arguments: map[string]interface{}{}},
		}, ExecuteToolCallsOptions{})

		if results[0].ToolCallID != "first" || results[1].ToolCallID != "second" {
			t.Fatalf("expected order [first second], got [%s %s]", results[0].ToolCallID, results[1].ToolCallID)
		}
	})

	t.Run("a panicking tool yields an error result instead of crashing the batch", func(t *testing.T) {
		registry := NewToolRegistry()
		registry.Register(&probeTool{name: "exploding_tool", panicOn: true})

		results := registry.ExecuteToolCalls(context.Background(), []providers.ToolCall{
			{ID: "tc1", Name: "exploding_tool", Arguments: map[string]interface{}{}},
		}, ExecuteToolCallsOptions{})

		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}
		if results[0].ToolCallID != "tc1" {
			t.Fatalf("ToolCallID = %q, want tc1", results[0].ToolCallID)
		}
		if results[0].Content == "" {
			t.Fatal("expected panic error content, got an empty result")
		}
	})

	t.Run("OnToolComplete fires once per call with a running completed count", func(t *testing.T) {
		registry := NewToolRegistry()
		registry.Register(&probeTool{name: "a", result: "a_ok"})
		registry.Register(&probeTool{name: "b", result: "b_ok"})

		seen := 0
		results := registry.ExecuteToolCalls(context.Background(), []providers.ToolCall{
			{ID: "tc1", Name: "a", Arguments: map[string]interface{}{}},
			{ID: "tc2", Name: "b", Arguments: map[string]interface{}{}},
		}, ExecuteToolCallsOptions{
			OnToolComplete: func(completed, total, index int, call providers.ToolCall, result providers.Message) {
				seen++
				if total != 2 {
					t.Errorf("total = %d, want 2", total)
				}
			},
		})

		if seen != 2 {
			t.Errorf("OnToolComplete fired %d times, want 2", seen)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
	})

	t.Run("an empty batch returns no results", func(t *testing.T) {
		registry := NewToolRegistry()
		results := registry.ExecuteToolCalls(context.Background(), nil, ExecuteToolCallsOptions{})
		if results != nil {
			t.Fatalf("expected nil results for an empty batch, got %v", results)
		}
	})
}
