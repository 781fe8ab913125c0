package core

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	switch s {
	case SeverityInfo, SeverityMedium, SeverityHigh, SeverityCritical:
		return s, nil
	}
	return "", fmt.Errorf("invalid severity %q, expected info, medium, high or critical", v)
}

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is as severe as threshold. Unknown severities
// rank below info.
func (s Severity) AtLeast(threshold Severity) bool {
	rank, ok := severityRank[s]
	if !ok {
		return false
	}
	return rank >= severityRank[threshold]
}

// Finding is one structured result of an audit probe.
type Finding struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Details  string   `json:"details,omitempty"`
}

// AuditReport is the payload of a successful audit envelope. Findings keep
// probe order, not severity order.
type AuditReport struct {
	Findings []Finding `json:"findings"`
}
