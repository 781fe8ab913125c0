package telemetry

import (
	"strings"
	"testing"
)

func TestRenderPrometheus_LabelOrderingStable(t *testing.T) {
	resetRegistry(t)

	IncDoctorRun("ok")
	IncDoctorRun("exit_error")
	IncAuditFinding("medium")
	IncAuditFinding("critical")
	IncRoutingResolution("local_config")
	IncRoutingResolution("backend")
	IncBackendError("ollama", "backend_timeout")
	IncBackendError("gateway", "backend_unreachable")

	out := RenderPrometheus()

	pairs := []struct {
		name, first, second string
	}{
		{"doctor", `clawd_doctor_runs_total{outcome="exit_error"}`, `clawd_doctor_runs_total{outcome="ok"}`},
		{"audit", `clawd_audit_findings_total{severity="critical"}`, `clawd_audit_findings_total{severity="medium"}`},
		{"routing", `clawd_routing_resolutions_total{source="backend"}`, `clawd_routing_resolutions_total{source="local_config"}`},
		{"backend", `clawd_backend_errors_total{backend="gateway"`, `clawd_backend_errors_total{backend="ollama"`},
	}
	for _, p := range pairs {
		i, j := strings.Index(out, p.first), strings.Index(out, p.second)
		if i < 0 || j < 0 {
			t.Fatalf("%s metrics missing from output:\n%s", p.name, out)
		}
		if i >= j {
			t.Fatalf("%s labels are not rendered in stable lexical order", p.name)
		}
	}
}
