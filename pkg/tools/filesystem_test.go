package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to prepare fixture dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
}

func TestReadFileTool(t *testing.T) {
	t.Run("reads an existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "SKILL.md")
		writeFixture(t, path, "# image-gen\nUse this skill to render images.")

		got, err := (&ReadFileTool{}).Execute(context.Background(), map[string]interface{}{"path": path})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "# image-gen\nUse this skill to render images." {
			t.Fatalf("unexpected content: %q", got)
		}
	})

	t.Run("rejects a missing path argument", func(t *testing.T) {
		if _, err := (&ReadFileTool{}).Execute(context.Background(), map[string]interface{}{}); err == nil {
			t.Fatal("expected error for missing path")
		}
	})

	t.Run("surfaces a wrapped error for a nonexistent file", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "does-not-exist.md")
		_, err := (&ReadFileTool{}).Execute(context.Background(), map[string]interface{}{"path": missing})
		if err == nil {
			t.Fatal("expected error reading a nonexistent file")
		}
		if !strings.Contains(err.Error(), "failed to read file") {
			t.Fatalf("expected wrapped read error, got %v", err)
		}
	})
}

func TestWriteFileTool(t *testing.T) {
	t.Run("creates parent directories on demand", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "memory", "notes", "2026-07-30.md")

		result, err := (&WriteFileTool{}).Execute(context.Background(), map[string]interface{}{
			"path":    target,
			"content": "user prefers dark mode",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "File written successfully" {
			t.Fatalf("unexpected result: %q", result)
		}

		raw, err := os.ReadFile(target)
		if err != nil {
			t.Fatalf("expected file to exist after write: %v", err)
		}
		if string(raw) != "user prefers dark mode" {
			t.Fatalf("unexpected file contents: %q", raw)
		}
	})

	t.Run("overwrites an existing file rather than appending", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "state.json")
		writeFixture(t, target, `{"version":1}`)

		if _, err := (&WriteFileTool{}).Execute(context.Background(), map[string]interface{}{
			"path":    target,
			"content": `{"version":2}`,
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		raw, _ := os.ReadFile(target)
		if string(raw) != `{"version":2}` {
			t.Fatalf("expected overwrite, got %q", raw)
		}
	})

	t.Run("requires both path and content", func(t *testing.T) {
		cases := []map[string]interface{}{
			{"content": "orphaned content"},
			{"path": filepath.Join(t.TempDir(), "out.txt")},
			{},
		}
		for _, args := range cases {
			if _, err := (&WriteFileTool{}).Execute(context.Background(), args); err == nil {
				t.Fatalf("expected error for args %v", args)
			}
		}
	})
}

func TestListDirTool(t *testing.T) {
	t.Run("separates files from directories", func(t *testing.T) {
		root := t.TempDir()
		writeFixture(t, filepath.Join(root, "README.md"), "workspace root")
		writeFixture(t, filepath.Join(root, "skills", "image-gen", "SKILL.md"), "skill body")

		got, err := (&ListDirTool{}).Execute(context.Background(), map[string]interface{}{"path": root})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(got, "FILE: README.md") {
			t.Fatalf("expected top-level file entry, got %q", got)
		}
		if !strings.Contains(got, "DIR:  skills") {
			t.Fatalf("expected nested directory entry, got %q", got)
		}
	})

	t.Run("defaults to the current directory when path is omitted", func(t *testing.T) {
		if _, err := (&ListDirTool{}).Execute(context.Background(), map[string]interface{}{}); err != nil {
			t.Fatalf("expected default path listing to succeed, got %v", err)
		}
	})

	t.Run("returns an empty listing for an empty directory", func(t *testing.T) {
		got, err := (&ListDirTool{}).Execute(context.Background(), map[string]interface{}{"path": t.TempDir()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "" {
			t.Fatalf("expected empty listing, got %q", got)
		}
	})

	t.Run("wraps the error for an unreadable path", func(t *testing.T) {
		_, err := (&ListDirTool{}).Execute(context.Background(), map[string]interface{}{
			"path": filepath.Join(t.TempDir(), "nowhere"),
		})
		if err == nil {
			t.Fatal("expected error listing a nonexistent directory")
		}
	})
}
