package tools

import (
	"fmt"
	"strings"
)

// ToolExecutionPolicy is an allow/deny gate in front of tool dispatch, so an
// operator can e.g. let an agent read files and search memory but never run
// shell commands. Matching is case-insensitive on the tool's registered name.
//
//   - Enabled=false skips every check — the zero value is permissive.
//   - Deny always wins, even for a name that also appears in Allow.
//   - A non-empty Allow switches the policy from denylist to allowlist: only
//     names present in Allow may run at all.
type ToolExecutionPolicy struct {
	Enabled bool
	Allow   map[string]struct{}
	Deny    map[string]struct{}
}

// NewToolExecutionPolicy builds a policy from operator-supplied tool name
// lists. Names are trimmed and lowercased; blank entries are dropped.
func NewToolExecutionPolicy(enabled bool, allow []string, deny []string) ToolExecutionPolicy {
	return ToolExecutionPolicy{
		Enabled: enabled,
		Allow:   normalizeToolNames(allow),
		Deny:    normalizeToolNames(deny),
	}
}

func normalizeToolNames(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// check returns an error if toolName is not permitted to run under p.
func (p ToolExecutionPolicy) check(toolName string) error {
	if !p.Enabled {
		return nil
	}

	name := strings.ToLower(strings.TrimSpace(toolName))
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}

	if _, denied := p.Deny[name]; denied {
		return fmt.Errorf("tool %s is blocked by policy", toolName)
	}

	if len(p.Allow) > 0 {
		if _, allowed := p.Allow[name]; !allowed {
			return fmt.Errorf("tool %s is not allowed by policy", toolName)
		}
	}

	return nil
}
