package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/tinyclaw/tinyclaw/pkg/providers"
)

// Tool is the capability every callable tool implements: a JSON-Schema
// declaration the LLM can read, and an execution function.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolRegistry holds every registered tool and mediates execution through
// an optional policy and an execution-context-args convention (channel,
// chat ID, trace ID injected as hidden keys rather than new interface
// methods, so existing tools never need to change shape).
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	policy ToolExecutionPolicy
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns every registered tool name.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

func (r *ToolRegistry) SetExecutionPolicy(policy ToolExecutionPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = policy
}

// Execute runs a tool by name with no execution context (no channel/chat
// injected into its args).
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	return r.execute(ctx, name, args)
}

// ExecuteWithContext runs a tool by name, injecting channel/chatID into
// its args under the hidden __context_* keys so tools that need to know
// where they were called from (message, cron, spawn) can read it without
// the Tool interface itself carrying that information.
func (r *ToolRegistry) ExecuteWithContext(ctx context.Context, name string, args map[string]interface{}, channel, chatID string) (string, error) {
	traceID := TraceIDFromContext(ctx)
	return r.execute(ctx, name, withExecutionContext(args, channel, chatID, traceID))
}

func (r *ToolRegistry) execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if err := r.policy.check(name); err != nil {
		return "", err
	}

	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	return tool.Execute(ctx, args)
}

// GetDefinitions returns every tool's JSON-Schema declaration in the
// OpenAI-compatible {"type":"function","function":{...}} envelope, as
// plain maps.
func (r *ToolRegistry) GetDefinitions() []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]map[string]interface{}, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        tool.Name(),
				"description": tool.Description(),
				"parameters":  tool.Parameters(),
			},
		})
	}
	return defs
}

// GetProviderDefinitions returns every tool's declaration in the
// strongly-typed providers.ToolDefinition shape sent directly to an
// LLMProvider.Chat call.
func (r *ToolRegistry) GetProviderDefinitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return defs
}

// GetSummaries renders a one-line "- name: description" summary per tool,
// used to build the tools section of a system prompt.
func (r *ToolRegistry) GetSummaries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]string, 0, len(r.tools))
	for _, tool := range r.tools {
		summaries = append(summaries, fmt.Sprintf("- %s: %s", tool.Name(), tool.Description()))
	}
	return summaries
}
