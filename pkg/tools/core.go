package tools

import "github.com/tinyclaw/tinyclaw/pkg/logger"

// SecurityOptions carries the operator-configured shell guard rails
// applied to the exec tool at registration time.
type SecurityOptions struct {
	RestrictToWorkspace  bool
	AllowCommandPatterns []string
	DenyCommandPatterns  []string
}

// RegisterCoreTools wires the baseline tool set every agent loop needs
// regardless of channel or provider: filesystem access, shell execution,
// and web fetch/search. Tools with per-conversation state (message, spawn,
// memory, cron) are registered by their own callers.
func RegisterCoreTools(registry *ToolRegistry, workspace string, security SecurityOptions, webSearchAPIKey string, webSearchMaxResults int) {
	registry.Register(&ReadFileTool{})
	registry.Register(&WriteFileTool{})
	registry.Register(&ListDirTool{})
	registry.Register(NewEditFileTool(workspace))

	execTool := NewExecTool(workspace)
	execTool.SetRestrictToWorkspace(security.RestrictToWorkspace)
	if err := execTool.SetAllowPatterns(security.AllowCommandPatterns); err != nil {
		logger.WarnCF("tools", "invalid allow command pattern, ignoring", map[string]interface{}{"error": err.Error()})
	}
	if err := execTool.SetExtraDenyPatterns(security.DenyCommandPatterns); err != nil {
		logger.WarnCF("tools", "invalid deny command pattern, ignoring", map[string]interface{}{"error": err.Error()})
	}
	registry.Register(execTool)

	registry.Register(NewWebFetchTool(50000))
	registry.Register(NewWebSearchTool(webSearchAPIKey, webSearchMaxResults))
}
