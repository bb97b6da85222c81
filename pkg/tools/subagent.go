package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinyclaw/tinyclaw/pkg/bus"
	"github.com/tinyclaw/tinyclaw/pkg/llmloop"
	"github.com/tinyclaw/tinyclaw/pkg/logger"
	"github.com/tinyclaw/tinyclaw/pkg/providers"
	"github.com/tinyclaw/tinyclaw/pkg/skills"
	"github.com/tinyclaw/tinyclaw/pkg/utils"
)

var (
	ErrSubagentTaskNotFound = errors.New("subagent task not found")
	ErrSubagentNotRunning   = errors.New("subagent task is not running")
)

const (
	defaultSubagentMaxTasks = 50
	defaultSubagentTTL      = 24 * time.Hour
)

type SubagentTask struct {
	ID            string
	Task          string
	Label         string
	OriginChannel string
	OriginChatID  string
	Model         string
	Status        string
	Result        string
	Created       int64
	Finished      int64
	cancel        context.CancelFunc
}

type SubagentManager struct {
	tasks     map[string]*SubagentTask
	mu        sync.RWMutex
	provider  providers.LLMProvider
	model     string
	bus       *bus.MessageBus
	workspace string
	nextID    int
	maxTasks  int
	ttl       time.Duration
}

func NewSubagentManager(provider providers.LLMProvider, model string, workspace string, bus *bus.MessageBus) *SubagentManager {
	return &SubagentManager{
		tasks:     make(map[string]*SubagentTask),
		provider:  provider,
		model:     model,
		bus:       bus,
		workspace: workspace,
		nextID:    1,
		maxTasks:  defaultSubagentMaxTasks,
		ttl:       defaultSubagentTTL,
	}
}

// ConfigureRetention sets how many finished tasks are kept and for how
// long, trimmed opportunistically on every Spawn.
func (sm *SubagentManager) ConfigureRetention(maxTasks int, ttl time.Duration) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.maxTasks = maxTasks
	sm.ttl = ttl
}

// Spawn starts a background subagent task. model overrides the manager's
// default model for this task only; pass "" to use the manager's model.
func (sm *SubagentManager) Spawn(ctx context.Context, task, label, originChannel, originChatID, model string) (string, error) {
	sm.mu.Lock()

	taskID := fmt.Sprintf("subagent-%d", sm.nextID)
	sm.nextID++

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	subagentTask := &SubagentTask{
		ID:            taskID,
		Task:          task,
		Label:         label,
		OriginChannel: originChannel,
		OriginChatID:  originChatID,
		Model:         model,
		Status:        "running",
		Created:       time.Now().UnixMilli(),
		cancel:        cancel,
	}
	sm.tasks[taskID] = subagentTask
	sm.cleanupLocked(time.Now())
	sm.mu.Unlock()

	go sm.runTask(taskCtx, subagentTask)

	return taskID, nil
}

// Cancel requests cancellation of a running task. It returns
// ErrSubagentTaskNotFound for an unknown task ID and ErrSubagentNotRunning
// if the task has already finished.
func (sm *SubagentManager) Cancel(taskID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	task, ok := sm.tasks[taskID]
	if !ok {
		return ErrSubagentTaskNotFound
	}
	if task.Status != "running" {
		return ErrSubagentNotRunning
	}

	task.Status = "cancelling"
	if task.cancel != nil {
		task.cancel()
	}
	return nil
}

// cleanupLocked drops finished tasks past the TTL or beyond the retained
// count, oldest first. Callers must hold sm.mu.
func (sm *SubagentManager) cleanupLocked(now time.Time) {
	type entry struct {
		id       string
		finished int64
	}

	finished := make([]entry, 0, len(sm.tasks))
	for id, task := range sm.tasks {
		switch task.Status {
		case "completed", "failed", "cancelled":
			finished = append(finished, entry{id: id, finished: task.Finished})
		}
	}

	if sm.ttl > 0 {
		cutoff := now.Add(-sm.ttl).UnixMilli()
		for _, e := range finished {
			if e.finished > 0 && e.finished < cutoff {
				delete(sm.tasks, e.id)
			}
		}
	}

	if sm.maxTasks <= 0 {
		return
	}

	remaining := make([]entry, 0, len(finished))
	for _, e := range finished {
		if _, ok := sm.tasks[e.id]; ok {
			remaining = append(remaining, e)
		}
	}
	if len(remaining) <= sm.maxTasks {
		return
	}

	sort.Slice(remaining, func(i, j int) bool { return remaining[i].finished < remaining[j].finished })
	for _, e := range remaining[:len(remaining)-sm.maxTasks] {
		delete(sm.tasks, e.id)
	}
}

func (sm *SubagentManager) runTask(ctx context.Context, task *SubagentTask) {
	// Mark running under lock for race safety
	sm.mu.Lock()
	task.Status = "running"
	task.Created = time.Now().UnixMilli()
	sm.mu.Unlock()

	// Build a subagent-only tool registry.
	registry := NewToolRegistry()
	registry.Register(&ReadFileTool{})
	registry.Register(&WriteFileTool{})
	registry.Register(&ListDirTool{})
	registry.Register(NewExecTool(sm.workspace))
	registry.Register(NewEditFileTool(sm.workspace))
	registry.Register(NewWebFetchTool(50000))
	// Web search requires an API key; the tool will self-report if missing.
	registry.Register(NewWebSearchTool("", 5))
	registry.Register(NewSubagentReportTool(sm.bus, task.ID, task.Label, task.OriginChannel, task.OriginChatID))

	systemPrompt := sm.buildSubagentSystemPrompt(registry)
	messages := []providers.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: task.Task},
	}

	model := task.Model
	if model == "" {
		model = sm.model
	}
	if model == "" {
		model = sm.provider.GetDefaultModel()
	}

	result, runErr := llmloop.Run(ctx, llmloop.RunOptions{
		Provider:      sm.provider,
		Model:         model,
		MaxIterations: 10,
		Messages:      messages,
		ChatOptions: map[string]interface{}{
			"max_tokens":  4096,
			"temperature": 0.3,
		},
		BuildToolDefs: func(iteration int, msgs []providers.Message) []providers.ToolDefinition {
			return registry.GetProviderDefinitions()
		},
		ExecuteTools: func(ctx context.Context, toolCalls []providers.ToolCall, iteration int) []providers.Message {
			results := make([]providers.Message, 0, len(toolCalls))
			for _, tc := range toolCalls {
				argsJSON, _ := json.Marshal(tc.Arguments)
				logger.InfoCF("subagent", fmt.Sprintf("Tool call: %s(%s)", tc.Name, utils.Truncate(string(argsJSON), 200)),
					map[string]interface{}{
						"task_id":     task.ID,
						"iteration":   iteration,
						"tool":        tc.Name,
						"tool_callID": tc.ID,
					})

				output, err := registry.Execute(ctx, tc.Name, tc.Arguments)
				if err != nil {
					output = fmt.Sprintf("Error: %v", err)
				}
				results = append(results, providers.Message{Role: "tool", Content: output, ToolCallID: tc.ID})
			}
			return results
		},
		Hooks: llmloop.Hooks{
			BeforeLLMCall: func(iteration int, msgs []providers.Message, toolDefs []providers.ToolDefinition) {
				logger.InfoCF("subagent", "Calling LLM",
					map[string]interface{}{
						"task_id":        task.ID,
						"iteration":      iteration,
						"model":          model,
						"messages_count": len(msgs),
						"tools_count":    len(toolDefs),
					})
			},
		},
	})

	sm.mu.Lock()
	task.Finished = time.Now().UnixMilli()
	switch {
	case task.Status == "cancelling" || errors.Is(runErr, context.Canceled):
		task.Status = "cancelled"
		task.Result = "Task cancelled"
	case runErr != nil:
		task.Status = "failed"
		task.Result = fmt.Sprintf("Error: %v", runErr)
	default:
		task.Status = "completed"
		task.Result = result.FinalContent
	}
	sm.cleanupLocked(time.Now())
	sm.mu.Unlock()

	// Send completion message back to main agent.
	if sm.bus != nil {
		label := task.Label
		if label == "" {
			label = task.ID
		}
		announceContent := fmt.Sprintf("Task '%s' completed.\n\nResult:\n%s", label, task.Result)
		sm.bus.PublishInbound(bus.InboundMessage{
			Channel:  "system",
			SenderID: fmt.Sprintf("subagent:%s", task.ID),
			// Format: "original_channel:original_chat_id" for routing back
			ChatID: fmt.Sprintf("%s:%s", task.OriginChannel, task.OriginChatID),
			Content: announceContent,
			Metadata: map[string]string{
				"subagent_event":   "complete",
				"subagent_task_id": task.ID,
			},
		})
	}
}

func (sm *SubagentManager) buildSubagentSystemPrompt(registry *ToolRegistry) string {
	// Build tools section dynamically
	toolsSection := ""
	summaries := registry.GetSummaries()
	if len(summaries) > 0 {
		toolsSection = "## Available Tools\n\n" +
			"**CRITICAL**: You MUST use tools to perform actions. Do NOT pretend to execute commands.\n\n" +
			"You have access to the following tools:\n\n" +
			strings.Join(summaries, "\n")
	}

	// Skills summary (same loader behavior as main agent: workspace > global > builtin)
	wd, _ := os.Getwd()
	globalSkillsDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		globalSkillsDir = filepath.Join(home, ".tinyclaw", "skills")
	}
	loader := skills.NewSkillsLoader(sm.workspace, globalSkillsDir, filepath.Join(wd, "skills"))
	skillsSummary := loader.BuildSkillsSummary()
	if skillsSummary != "" {
		skillsSummary = "## Skills\n\nThe following skills extend your capabilities. To use a skill, read its SKILL.md file using the read_file tool.\n\n" + skillsSummary
	}

	workspacePath, _ := filepath.Abs(filepath.Join(sm.workspace))

	parts := []string{
		"# tinyclaw subagent",
		"You are a background subagent working for the main tinyclaw agent.",
		"\nRules:",
		"1. Use tools when you need to perform an action.",
		"2. Do NOT message the end user. Use `subagent_report` to communicate with the main agent.",
		"3. When finished, provide a clear result and include any artifact file paths.",
		fmt.Sprintf("\nWorkspace: %s", workspacePath),
	}

	if toolsSection != "" {
		parts = append(parts, "\n"+toolsSection)
	}
	if skillsSummary != "" {
		parts = append(parts, "\n"+skillsSummary)
	}

	return strings.Join(parts, "\n")
}

func (sm *SubagentManager) GetTask(taskID string) (*SubagentTask, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	task, ok := sm.tasks[taskID]
	return task, ok
}

func (sm *SubagentManager) ListTasks() []*SubagentTask {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	tasks := make([]*SubagentTask, 0, len(sm.tasks))
	for _, task := range sm.tasks {
		tasks = append(tasks, task)
	}
	return tasks
}
