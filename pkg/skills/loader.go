package skills

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Skill is one discovered SKILL.md: a short name/description pulled from
// its frontmatter plus the path the agent should read for full content.
type Skill struct {
	Name        string
	Description string
	Path        string
	Source      string // "workspace", "global", or "builtin"
}

// SkillsLoader discovers skills across three directories, in priority
// order: workspace-local skills shadow global skills, which shadow
// builtin ones. Only workspace and global are wired today; builtin has
// no directory of its own and is always empty.
type SkillsLoader struct {
	workspaceDir string
	globalDir    string
	localDir     string
}

func NewSkillsLoader(workspaceDir, globalDir, localDir string) *SkillsLoader {
	return &SkillsLoader{
		workspaceDir: workspaceDir,
		globalDir:    globalDir,
		localDir:     localDir,
	}
}

// Discover walks each configured directory for <name>/SKILL.md files and
// returns the deduplicated set, workspace-local entries winning over
// global ones of the same name.
func (l *SkillsLoader) Discover() []Skill {
	byName := make(map[string]Skill)

	l.scanInto(byName, l.globalDir, "global")
	l.scanInto(byName, l.localDir, "workspace")

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Skill, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out
}

func (l *SkillsLoader) scanInto(byName map[string]Skill, dir, source string) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillPath := filepath.Join(dir, entry.Name(), "SKILL.md")
		data, err := os.ReadFile(skillPath)
		if err != nil {
			continue
		}
		name, desc := parseFrontmatter(string(data))
		if name == "" {
			name = entry.Name()
		}
		byName[entry.Name()] = Skill{
			Name:        name,
			Description: desc,
			Path:        skillPath,
			Source:      source,
		}
	}
}

// parseFrontmatter extracts "name:" and "description:" from a minimal
// "---\nkey: value\n---" YAML frontmatter block, without pulling in a YAML
// dependency for two scalar fields.
func parseFrontmatter(content string) (name, description string) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", ""
	}
	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "---" {
			break
		}
		switch {
		case strings.HasPrefix(trimmed, "name:"):
			name = strings.TrimSpace(strings.TrimPrefix(trimmed, "name:"))
		case strings.HasPrefix(trimmed, "description:"):
			description = strings.TrimSpace(strings.TrimPrefix(trimmed, "description:"))
		}
	}
	return strings.Trim(name, `"'`), strings.Trim(description, `"'`)
}

// BuildSkillsSummary renders the discovered skill set as a bullet list
// suitable for inlining into a system prompt. Returns "" when no skills
// are available so callers can skip the section header entirely.
func (l *SkillsLoader) BuildSkillsSummary() string {
	discovered := l.Discover()
	if len(discovered) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range discovered {
		if s.Description != "" {
			b.WriteString("- **" + s.Name + "**: " + s.Description + " (" + s.Path + ")\n")
		} else {
			b.WriteString("- **" + s.Name + "** (" + s.Path + ")\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
