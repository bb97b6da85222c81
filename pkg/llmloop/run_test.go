package llmloop

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tinyclaw/tinyclaw/pkg/providers"
)

// mockProvider plays back a scripted sequence of responses and records
// every message slice it was called with, so a test can assert what the
// loop actually sent on the wire after budgeting.
type mockProvider struct {
	responses []*providers.LLMResponse
	err       error
	calls     int
	seenMsgs  [][]providers.Message
}

func (m *mockProvider) Chat(_ context.Context, messages []providers.Message, _ []providers.ToolDefinition, _ string, _ map[string]interface{}) (*providers.LLMResponse, error) {
	m.calls++
	cloned := make([]providers.Message, len(messages))
	copy(cloned, messages)
	m.seenMsgs = append(m.seenMsgs, cloned)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &providers.LLMResponse{Content: ""}, nil
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r, nil
}

func (m *mockProvider) GetDefaultModel() string { return "test-model" }

func TestRun(t *testing.T) {
	t.Run("a direct answer with no tool calls finishes in one iteration", func(t *testing.T) {
		p := &mockProvider{responses: []*providers.LLMResponse{{Content: "your reminder is set for 9am"}}}

		res, err := Run(context.Background(), RunOptions{
			Provider:      p,
			Model:         "test-model",
			MaxIterations: 3,
			Messages:      []providers.Message{{Role: "user", Content: "remind me at 9am"}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.FinalContent != "your reminder is set for 9am" {
			t.Fatalf("FinalContent = %q, want %q", res.FinalContent, "your reminder is set for 9am")
		}
		if res.Exhausted {
			t.Fatal("expected Exhausted=false")
		}
		if res.Iterations != 1 {
			t.Fatalf("Iterations = %d, want 1", res.Iterations)
		}
	})

	t.Run("a tool call round feeds its result back for a second turn", func(t *testing.T) {
		p := &mockProvider{responses: []*providers.LLMResponse{
			{ToolCalls: []providers.ToolCall{{ID: "tc1", Name: "set_reminder", Arguments: map[string]interface{}{}}}},
			{Content: "done"},
		}}

		var requested []providers.ToolCall
		res, err := Run(context.Background(), RunOptions{
			Provider:      p,
			Model:         "test-model",
			MaxIterations: 3,
			Messages:      []providers.Message{{Role: "user", Content: "set a reminder"}},
			BuildToolDefs: func(iteration int, messages []providers.Message) []providers.ToolDefinition {
				return []providers.ToolDefinition{{
					Type: "function",
					Function: providers.ToolFunctionDefinition{
						Name: "set_reminder",
					},
				}}
			},
			ExecuteTools: func(ctx context.Context, toolCalls []providers.ToolCall, iteration int) []providers.Message {
				return []providers.Message{providers.ToolResultMessage("tc1", "reminder set")}
			},
			Hooks: Hooks{
				ToolCallsRequested: func(iteration int, toolCalls []providers.ToolCall) {
					requested = toolCalls
				},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.FinalContent != "done" {
			t.Fatalf("FinalContent = %q, want %q", res.FinalContent, "done")
		}
		if res.Iterations != 2 {
			t.Fatalf("Iterations = %d, want 2", res.Iterations)
		}
		if len(res.Messages) != 3 {
			t.Fatalf("Messages len = %d, want 3", len(res.Messages))
		}
		if res.Messages[1].Role != "assistant" {
			t.Fatalf("message[1].Role = %q, want assistant", res.Messages[1].Role)
		}
		if res.Messages[2].Role != "tool" {
			t.Fatalf("message[2].Role = %q, want tool", res.Messages[2].Role)
		}
		if len(requested) != 1 || requested[0].Name != "set_reminder" {
			t.Fatalf("ToolCallsRequested hook saw %+v, want one set_reminder call", requested)
		}
	})

	t.Run("hitting MaxIterations while tools are still pending marks the run exhausted", func(t *testing.T) {
		p := &mockProvider{responses: []*providers.LLMResponse{
			{ToolCalls: []providers.ToolCall{{ID: "tc1", Name: "memory_search", Arguments: map[string]interface{}{}}}},
		}}

		res, err := Run(context.Background(), RunOptions{
			Provider:      p,
			Model:         "test-model",
			MaxIterations: 1,
			Messages:      []providers.Message{{Role: "user", Content: "what do I take for headaches?"}},
			ExecuteTools: func(ctx context.Context, toolCalls []providers.ToolCall, iteration int) []providers.Message {
				return []providers.Message{providers.ToolResultMessage("tc1", "no matching memory")}
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Exhausted {
			t.Fatal("expected Exhausted=true")
		}
		if res.FinalContent != "" {
			t.Fatalf("FinalContent = %q, want empty", res.FinalContent)
		}
	})

	t.Run("a non-positive MaxIterations returns immediately without calling the provider", func(t *testing.T) {
		p := &mockProvider{responses: []*providers.LLMResponse{{Content: "should never be seen"}}}

		res, err := Run(context.Background(), RunOptions{
			Provider:      p,
			Model:         "test-model",
			MaxIterations: 0,
			Messages:      []providers.Message{{Role: "user", Content: "hi"}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.calls != 0 {
			t.Fatalf("provider was called %d times, want 0", p.calls)
		}
		if !res.Exhausted {
			t.Fatal("expected Exhausted=true for a zero-iteration budget")
		}
	})

	t.Run("a provider error stops the loop and fires the failure hook", func(t *testing.T) {
		p := &mockProvider{err: errors.New("upstream is down")}

		failedCalled := false
		_, err := Run(context.Background(), RunOptions{
			Provider:      p,
			Model:         "test-model",
			MaxIterations: 2,
			Messages:      []providers.Message{{Role: "user", Content: "run the nightly backup"}},
			Hooks: Hooks{
				LLMCallFailed: func(iteration int, err error) {
					failedCalled = true
				},
			},
		})
		if err == nil {
			t.Fatal("expected an error")
		}
		if !failedCalled {
			t.Fatal("expected the LLMCallFailed hook to run")
		}
	})
}

func TestRunAppliesMessageBudgetBeforeEachProviderCall(t *testing.T) {
	t.Run("an oversized tool message is truncated before being sent", func(t *testing.T) {
		p := &mockProvider{responses: []*providers.LLMResponse{{Content: "ok"}}}

		longTool := strings.Repeat("x", 120)
		_, err := Run(context.Background(), RunOptions{
			Provider:      p,
			Model:         "test-model",
			MaxIterations: 1,
			MessageBudget: providers.MessageBudget{
				MaxToolMessageChars: 24,
			},
			Messages: []providers.Message{
				{Role: "system", Content: "you are a helpful home assistant"},
				{Role: "tool", Content: longTool},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(p.seenMsgs) != 1 || len(p.seenMsgs[0]) != 2 {
			t.Fatalf("unexpected captured messages: %+v", p.seenMsgs)
		}
		if got := len(p.seenMsgs[0][1].Content); got > 24 {
			t.Fatalf("tool message len = %d, want <= 24", got)
		}
		if !strings.Contains(p.seenMsgs[0][1].Content, "truncated") {
			t.Fatalf("expected a truncation marker, got %q", p.seenMsgs[0][1].Content)
		}
	})

	t.Run("MaxTotalChars drops the oldest non-system message first", func(t *testing.T) {
		p := &mockProvider{responses: []*providers.LLMResponse{{Content: "ok"}}}

		_, err := Run(context.Background(), RunOptions{
			Provider:      p,
			Model:         "test-model",
			MaxIterations: 1,
			MessageBudget: providers.MessageBudget{
				MaxTotalChars:   60,
				MaxMessageChars: 32,
			},
			Messages: []providers.Message{
				{Role: "system", Content: "you are a helpful home assistant"},
				{Role: "user", Content: strings.Repeat("a", 20)},
				{Role: "user", Content: strings.Repeat("b", 20)},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(p.seenMsgs) != 1 {
			t.Fatalf("expected 1 captured call, got %d", len(p.seenMsgs))
		}
		call := p.seenMsgs[0]
		if len(call) != 2 {
			t.Fatalf("expected 2 messages after budgeting, got %d", len(call))
		}
		if call[0].Role != "system" {
			t.Fatalf("first message role = %q, want system", call[0].Role)
		}
		if !strings.Contains(call[1].Content, "b") {
			t.Fatalf("expected the latest user message to be kept, got %q", call[1].Content)
		}
	})
}
