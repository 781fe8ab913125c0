// Package skills reads the OpenClaw workspace skills directory. Each skill
// is a subdirectory holding a SKILL.md file.
package skills

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
)

const manifestName = "SKILL.md"

// Dir returns <workspace>/skills, defaulting the workspace to
// ~/.openclaw/workspace.
func Dir(workspace string) string {
	if workspace == "" {
		workspace = DefaultWorkspace()
	}
	return filepath.Join(workspace, "skills")
}

// DefaultWorkspace is ~/.openclaw/workspace, or a relative path when the home
// directory is unknown.
func DefaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".openclaw", "workspace")
	}
	return filepath.Join(home, ".openclaw", "workspace")
}

type Listing struct {
	Skills []string `json:"skills"`
	Path   string   `json:"path"`
}

type Skill struct {
	Name    string `json:"skill_name"`
	Content string `json:"content"`
}

// Names returns the sorted skill names under dir. A missing dir yields an
// empty list and fs.ErrNotExist.
func Names(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}, err
	}
	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if info, err := os.Stat(filepath.Join(dir, entry.Name(), manifestName)); err == nil && info.Mode().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func List(dir string) core.Envelope {
	names, err := Names(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Success("No workspace skills directory found. Run 'openclaw onboard' to set up.", Listing{Skills: names, Path: dir})
	}
	if err != nil {
		return core.Failure("Could not read skills directory.", err.Error())
	}
	return core.Success(fmt.Sprintf("Found %d skills in workspace.", len(names)), Listing{Skills: names, Path: dir})
}

func Read(dir, name string) core.Envelope {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Failure("skill_name required for read operation", "")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return core.Failure(fmt.Sprintf("Skill '%s' not found.", name), "skill name must be a single directory name")
	}

	path := filepath.Join(dir, name, manifestName)
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Failure(fmt.Sprintf("Skill '%s' not found.", name), path)
	}
	if err != nil {
		return core.Failure(fmt.Sprintf("Could not read skill '%s'.", name), err.Error())
	}
	return core.Success(fmt.Sprintf("Read SKILL.md for '%s'.", name), Skill{Name: name, Content: string(content)})
}
