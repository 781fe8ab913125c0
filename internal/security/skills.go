package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
)

type riskPattern struct {
	expr        *regexp.Regexp
	severity    core.Severity
	description string
}

var skillRiskPatterns = []riskPattern{
	{regexp.MustCompile(`(?i)os\.environ|getenv|environ\.get`), core.SeverityHigh, "Accesses environment variables (may leak secrets)"},
	{regexp.MustCompile(`(?i)open\([^)]*["']w["']|\.write\(`), core.SeverityMedium, "File write capability"},
	{regexp.MustCompile(`(?i)subprocess|exec|eval\s*\(`), core.SeverityHigh, "Command execution"},
	{regexp.MustCompile(`(?i)requests\.(get|post)|httpx\.|urllib\.request`), core.SeverityMedium, "Network outbound requests"},
	{regexp.MustCompile(`(?i)\.ssh|id_rsa|private.?key`), core.SeverityCritical, "SSH key access"},
	{regexp.MustCompile(`(?i)token|api.?key|secret|password`), core.SeverityMedium, "Potential secret handling"},
	{regexp.MustCompile(`(?i)base64\.(b64decode|decode)`), core.SeverityMedium, "Decoding (may obfuscate payload)"},
}

// SkillRisk is one pattern hit in a skill's SKILL.md.
type SkillRisk struct {
	Skill       string        `json:"skill"`
	Severity    core.Severity `json:"severity"`
	Description string        `json:"description"`
	Pattern     string        `json:"pattern"`
}

type SkillScan struct {
	SkillsChecked int         `json:"skills_checked"`
	Findings      []SkillRisk `json:"findings"`
}

// CheckSkills scans every <skillsDir>/<name>/SKILL.md. A missing directory is
// not an error.
func CheckSkills(skillsDir string) core.Envelope {
	entries, err := os.ReadDir(skillsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Success("No skills directory found. Nothing to scan.", SkillScan{Findings: []SkillRisk{}})
	}
	if err != nil {
		return core.Failure("Could not read skills directory.", err.Error())
	}

	scan := SkillScan{Findings: []SkillRisk{}}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(skillsDir, entry.Name(), "SKILL.md"))
		if err != nil {
			continue
		}
		scan.SkillsChecked++
		for _, p := range skillRiskPatterns {
			if p.expr.Match(content) {
				scan.Findings = append(scan.Findings, SkillRisk{
					Skill:       entry.Name(),
					Severity:    p.severity,
					Description: p.description,
					Pattern:     p.expr.String(),
				})
			}
		}
	}

	msg := fmt.Sprintf("Scanned %d skills. %d potential risks.", scan.SkillsChecked, len(scan.Findings))
	return core.Success(msg, scan)
}
