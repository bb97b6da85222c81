package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EditFileTool replaces one occurrence of old_text with new_text inside a
// file, restricted to files under allowedDir.
type EditFileTool struct {
	allowedDir string
}

func NewEditFileTool(allowedDir string) *EditFileTool {
	return &EditFileTool{allowedDir: allowedDir}
}

func (t *EditFileTool) Name() string {
	return "edit_file"
}

func (t *EditFileTool) Description() string {
	return "Replace an exact text occurrence inside a file within the allowed directory"
}

func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to edit",
			},
			"old_text": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to find and replace",
			},
			"new_text": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text",
			},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(_ context.Context, args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", fmt.Errorf("path is required")
	}
	oldText, ok := args["old_text"].(string)
	if !ok {
		return "", fmt.Errorf("old_text is required")
	}
	newText, ok := args["new_text"].(string)
	if !ok {
		return "", fmt.Errorf("new_text is required")
	}

	if err := checkWithinDir(path, t.allowedDir); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	content := string(data)
	if !strings.Contains(content, oldText) {
		return "", fmt.Errorf("old_text not found in file")
	}
	updated := strings.Replace(content, oldText, newText, 1)

	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return "File edited successfully", nil
}

// checkWithinDir rejects any path that does not resolve strictly inside
// allowedDir. A plain strings.HasPrefix check would wrongly let
// "/workspace-escape/x" pass for allowedDir "/workspace"; cleaning both
// paths and requiring an exact match or a separator-bounded prefix closes
// that gap.
func checkWithinDir(path, allowedDir string) error {
	if allowedDir == "" {
		return nil
	}

	absAllowed, err := filepath.Abs(allowedDir)
	if err != nil {
		return fmt.Errorf("failed to resolve allowed directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absAllowed = filepath.Clean(absAllowed)
	absPath = filepath.Clean(absPath)

	if absPath == absAllowed {
		return nil
	}
	if strings.HasPrefix(absPath, absAllowed+string(os.PathSeparator)) {
		return nil
	}
	return fmt.Errorf("path %q is outside allowed directory %q", path, allowedDir)
}
