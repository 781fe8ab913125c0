package core

import (
	"fmt"
	"sort"
	"strings"
)

// Policy restricts which MCP tools are registered, parsed from a
// comma-separated allowlist. An empty allowlist exposes every tool.
type Policy struct {
	allowedTools map[string]bool
}

func NewPolicy(toolCSV string) *Policy {
	return &Policy{allowedTools: parseCSV(toolCSV)}
}

// CheckTool returns an error if toolName is not in a non-empty allowlist.
func (p *Policy) CheckTool(toolName string) error {
	if p == nil || len(p.allowedTools) == 0 {
		return nil
	}
	if !p.allowedTools[toolName] {
		return fmt.Errorf("tool %q not in allowlist", toolName)
	}
	return nil
}

// AllowedTools lists the allowlist in sorted order; nil means unrestricted.
func (p *Policy) AllowedTools() []string {
	if p == nil || len(p.allowedTools) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.allowedTools))
	for name := range p.allowedTools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func parseCSV(s string) map[string]bool {
	m := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			m[item] = true
		}
	}
	return m
}
