package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const clawdbotConfigName = "clawdbot.json"

type ConfigIssue struct {
	Path  string `json:"path"`
	Issue string `json:"issue"`
}

type ConfigValidation struct {
	Issues       []ConfigIssue `json:"issues"`
	PathsChecked []string      `json:"paths_checked"`
}

// ConfigPaths lists where clawdbot.json may live for a workspace.
func ConfigPaths(workspace, homeDir string) []string {
	paths := []string{
		filepath.Join(workspace, clawdbotConfigName),
		filepath.Join(filepath.Dir(workspace), clawdbotConfigName),
	}
	if homeDir != "" {
		paths = append(paths, filepath.Join(homeDir, ".openclaw", clawdbotConfigName))
	}
	return paths
}

// ValidateConfig inspects every existing candidate for an exposed bind,
// a missing allowFrom list and missing tool allow-lists.
func ValidateConfig(paths []string) ConfigValidation {
	result := ConfigValidation{Issues: []ConfigIssue{}, PathsChecked: paths}
	found := false

	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		found = true
		if err != nil {
			result.Issues = append(result.Issues, ConfigIssue{Path: path, Issue: fmt.Sprintf("Unreadable: %v", err)})
			continue
		}

		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			result.Issues = append(result.Issues, ConfigIssue{Path: path, Issue: fmt.Sprintf("Invalid JSON: %v", err)})
			continue
		}

		gw, _ := doc["gateway"].(map[string]any)
		switch bind, _ := gw["bind"].(string); bind {
		case "", "0.0.0.0", "*":
			result.Issues = append(result.Issues, ConfigIssue{Path: path, Issue: "gateway.bind exposed (0.0.0.0 or missing)"})
		}
		if !truthy(gw["allowFrom"]) {
			result.Issues = append(result.Issues, ConfigIssue{Path: path, Issue: "gateway.allowFrom not configured"})
		}
		tools, _ := doc["tools"].(map[string]any)
		if !truthy(tools["allow"]) && !truthy(tools["safeBins"]) {
			result.Issues = append(result.Issues, ConfigIssue{Path: path, Issue: "No tools allow-list or safeBins"})
		}
	}

	if !found {
		result.Issues = append(result.Issues, ConfigIssue{Path: "none", Issue: "No clawdbot.json found in common locations"})
	}
	return result
}

// truthy treats absent, null, false, zero and empty values as unset.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
