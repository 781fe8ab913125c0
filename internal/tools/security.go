package tools

import (
	"context"
	"fmt"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/security"
	"github.com/clawd-mcp/clawd-mcp/internal/skills"
)

type SecurityArgs struct {
	Operation     string `json:"operation" jsonschema:"one of audit, check_skills, validate_config, recommendations, provision_sandbox"`
	WorkspacePath string `json:"workspace_path,omitempty" jsonschema:"workspace root, default from config or ~/.openclaw/workspace"`
}

var securityOperations = []string{"audit", "check_skills", "validate_config", "recommendations", "provision_sandbox"}

func (s *Service) Security(ctx context.Context, args SecurityArgs) core.Envelope {
	switch args.Operation {
	case "audit":
		return s.Audit(ctx)
	case "check_skills":
		return security.CheckSkills(skills.Dir(s.Workspace(args.WorkspacePath)))
	case "validate_config":
		result := security.ValidateConfig(security.ConfigPaths(s.Workspace(args.WorkspacePath), s.homeDir))
		return core.Success(fmt.Sprintf("Validated config. %d issues.", len(result.Issues)), result)
	case "recommendations":
		checklist := security.Checklist()
		return core.Success(
			fmt.Sprintf("Hardening checklist with %d items from Auth0 and Intruder.", len(checklist)),
			map[string]any{"checklist": checklist},
		)
	case "provision_sandbox":
		return core.Success("Sandbox provisioning playbook. Use with virtualization-mcp.", security.SandboxPlaybook())
	}
	return unknownOperation(args.Operation, securityOperations)
}

// Audit runs the four-probe security audit against the configured gateway.
func (s *Service) Audit(ctx context.Context) core.Envelope {
	gw := s.NewGateway()
	defer gw.Close()

	auditor := &security.Auditor{
		Invoker:  gw,
		Doctor:   s.doctor,
		BaseURL:  s.cfg.Gateway.URL,
		TokenSet: s.cfg.Gateway.Token != "",
		Logger:   s.logger,
	}
	return auditor.Run(ctx)
}

// AuditReport is Audit with the findings decoded from the envelope.
func (s *Service) AuditReport(ctx context.Context) (core.AuditReport, error) {
	var report core.AuditReport
	if err := s.Audit(ctx).DecodeData(&report); err != nil {
		return core.AuditReport{}, fmt.Errorf("decode audit report: %w", err)
	}
	return report, nil
}

type SkillsArgs struct {
	Operation     string `json:"operation" jsonschema:"one of list, read"`
	SkillName     string `json:"skill_name,omitempty" jsonschema:"skill directory name for read"`
	WorkspacePath string `json:"workspace_path,omitempty" jsonschema:"workspace root, default from config or ~/.openclaw/workspace"`
}

var skillsOperations = []string{"list", "read"}

func (s *Service) Skills(_ context.Context, args SkillsArgs) core.Envelope {
	dir := skills.Dir(s.Workspace(args.WorkspacePath))
	switch args.Operation {
	case "list":
		return skills.List(dir)
	case "read":
		return skills.Read(dir, args.SkillName)
	}
	return unknownOperation(args.Operation, skillsOperations)
}
