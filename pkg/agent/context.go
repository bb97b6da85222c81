package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tinyclaw/tinyclaw/pkg/logger"
	"github.com/tinyclaw/tinyclaw/pkg/providers"
	"github.com/tinyclaw/tinyclaw/pkg/skills"
	"github.com/tinyclaw/tinyclaw/pkg/tools"
)

// ContextBuilder assembles the system prompt and message list sent to the
// LLM on every turn: identity, workspace layout, available tools, skills,
// and the running conversation's summary and history.
type ContextBuilder struct {
	workspace    string
	skillsLoader *skills.SkillsLoader
	tools        *tools.ToolRegistry
}

func NewContextBuilder(workspace string) *ContextBuilder {
	globalSkillsDir := filepath.Join(globalConfigDir(), "skills")
	workspaceSkillsDir := filepath.Join(workspace, "skills")

	return &ContextBuilder{
		workspace:    workspace,
		skillsLoader: skills.NewSkillsLoader(workspace, globalSkillsDir, workspaceSkillsDir),
	}
}

func globalConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tinyclaw")
}

// SetToolsRegistry wires the registry used to render the tools section of
// the system prompt.
func (cb *ContextBuilder) SetToolsRegistry(registry *tools.ToolRegistry) {
	cb.tools = registry
}

func (cb *ContextBuilder) buildIdentity() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	workspacePath, _ := filepath.Abs(cb.workspace)
	runtimeInfo := fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())

	return fmt.Sprintf(`# TinyClaw

You are TinyClaw, a personal AI agent running continuously on the user's own machine.

## Current Time
%s

## Runtime
%s

## Workspace
Your workspace is at: %s
- Standing instructions: %s/memory/HEARTBEAT.md
- Skills: %s/skills/{skill-name}/SKILL.md

%s

## Important Rules

1. **Always use tools** to perform actions — exec, read_file, write_file, edit_file — rather than describing what you would do.
2. **Be proactive** about finishing a task fully rather than stopping halfway and asking for confirmation on routine steps.
3. **Use memory_search** when the user references something from a previous conversation, and store anything durably useful with memory_store.`,
		now, runtimeInfo, workspacePath, workspacePath, workspacePath, cb.buildToolsSection())
}

func (cb *ContextBuilder) buildToolsSection() string {
	if cb.tools == nil {
		return ""
	}
	summaries := cb.tools.GetSummaries()
	if len(summaries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Available Tools\n\n")
	for _, s := range summaries {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (cb *ContextBuilder) loadBootstrapFiles() string {
	var result strings.Builder
	for _, filename := range []string{"AGENTS.md", "SOUL.md", "USER.md", filepath.Join("memory", "MEMORY.md")} {
		data, err := os.ReadFile(filepath.Join(cb.workspace, filename))
		if err != nil {
			continue
		}
		result.WriteString(fmt.Sprintf("## %s\n\n%s\n\n", filename, string(data)))
	}
	return strings.TrimRight(result.String(), "\n")
}

// BuildSystemPrompt assembles identity, bootstrap files, and skills into
// the full system prompt, joining non-empty sections with a "---" rule.
func (cb *ContextBuilder) BuildSystemPrompt() string {
	parts := []string{cb.buildIdentity()}

	if bootstrap := cb.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}

	if skillsSummary := cb.skillsLoader.BuildSkillsSummary(); skillsSummary != "" {
		parts = append(parts, fmt.Sprintf("# Skills\n\nThe following skills extend your capabilities. Run them via the exec tool. Read each skill's SKILL.md for full details.\n\n%s", skillsSummary))
	}

	return strings.Join(parts, "\n\n---\n\n")
}

// BuildMessages assembles the full message list sent to the LLM: a system
// message (identity + tools + skills + summary + session info), the prior
// history, and the current user turn.
func (cb *ContextBuilder) BuildMessages(history []providers.Message, summary string, currentMessage string, media []string, channel, chatID string) []providers.Message {
	systemPrompt := cb.BuildSystemPrompt()

	if channel != "" && chatID != "" {
		systemPrompt += fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}

	if summary != "" {
		systemPrompt += "\n\n## Summary of Previous Conversation\n\n" + summary
	}

	logger.DebugCF("agent", "system prompt built", map[string]interface{}{
		"total_chars": len(systemPrompt),
	})

	// A summarization pass can leave an orphaned role=tool message at the
	// front of history with no matching assistant tool call before it;
	// providers reject that shape.
	for len(history) > 0 && history[0].Role == "tool" {
		history = history[1:]
	}

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)

	userContent := currentMessage
	if len(media) > 0 {
		userContent += "\n\n[Attached files: " + strings.Join(media, ", ") + "]"
	}
	messages = append(messages, providers.Message{Role: "user", Content: userContent})

	return messages
}

// GetSkillsInfo reports the discovered skill set for startup logging.
func (cb *ContextBuilder) GetSkillsInfo() map[string]interface{} {
	discovered := cb.skillsLoader.Discover()
	names := make([]string, 0, len(discovered))
	for _, s := range discovered {
		names = append(names, s.Name)
	}
	return map[string]interface{}{
		"total": len(discovered),
		"names": names,
	}
}
