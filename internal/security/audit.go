// Package security implements the clawd_security operations: the gateway
// audit, the skills scan, config validation and the hardening references.
package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/doctor"
	"github.com/clawd-mcp/clawd-mcp/internal/gateway"
	"github.com/clawd-mcp/clawd-mcp/internal/telemetry"
)

// ReachabilityTool is the cheap read-only tool used to check the gateway.
const ReachabilityTool = "sessions_list"

type Invoker interface {
	Invoke(ctx context.Context, req gateway.InvokeRequest) (core.Envelope, error)
}

type DoctorRunner interface {
	Doctor(ctx context.Context) (doctor.Report, error)
}

// Auditor checks one gateway deployment. BaseURL and TokenSet describe the
// configuration under audit; Invoker and Doctor reach the live system.
type Auditor struct {
	Invoker  Invoker
	Doctor   DoctorRunner
	BaseURL  string
	TokenSet bool
	Logger   *slog.Logger
}

type probe struct {
	name string
	run  func(ctx context.Context) []core.Finding
}

// Run executes the four probes concurrently and returns their findings in
// probe order: reachability, token, bind, doctor. A failing probe becomes a
// finding and never stops the others.
func (a *Auditor) Run(ctx context.Context) core.Envelope {
	report := a.Report(ctx)
	return core.Success(fmt.Sprintf("Audit complete. %d findings.", len(report.Findings)), report)
}

// Report is Run without the envelope.
func (a *Auditor) Report(ctx context.Context) core.AuditReport {
	probes := []probe{
		{name: "reachability", run: a.reachability},
		{name: "token", run: a.token},
		{name: "bind", run: a.bind},
		{name: "doctor", run: a.doctor},
	}

	results := make([][]core.Finding, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Go(func() {
			results[i] = a.guard(ctx, p)
		})
	}
	wg.Wait()

	findings := make([]core.Finding, 0, len(probes))
	for _, r := range results {
		findings = append(findings, r...)
	}
	for _, f := range findings {
		telemetry.IncAuditFinding(string(f.Severity))
	}
	return core.AuditReport{Findings: findings}
}

func (a *Auditor) guard(ctx context.Context, p probe) (out []core.Finding) {
	defer func() {
		if v := recover(); v != nil {
			a.logger().Error("audit probe panicked", "probe", p.name, "panic", v)
			if p.name == "reachability" {
				out = []core.Finding{gatewayError(fmt.Errorf("%v", v))}
				return
			}
			out = []core.Finding{{
				ID:       p.name + "_error",
				Severity: core.SeverityHigh,
				Title:    fmt.Sprintf("%s probe failed: %v", p.name, v),
			}}
		}
	}()
	return p.run(ctx)
}

func (a *Auditor) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Auditor) reachability(ctx context.Context) []core.Finding {
	if a.Invoker == nil {
		return []core.Finding{gatewayError(errors.New("no gateway client configured"))}
	}
	env, err := a.Invoker.Invoke(ctx, gateway.InvokeRequest{Tool: ReachabilityTool, Args: map[string]any{}})
	if err != nil {
		a.logger().Error("audit gateway check failed", "operation", "audit", "err", err)
		return []core.Finding{gatewayError(err)}
	}
	if !env.Success {
		return []core.Finding{{
			ID:       "gateway_unreachable",
			Severity: core.SeverityCritical,
			Title:    "Gateway unreachable",
			Details:  env.Error,
		}}
	}
	return []core.Finding{{ID: "gateway_reachable", Severity: core.SeverityInfo, Title: "Gateway reachable"}}
}

func gatewayError(err error) core.Finding {
	return core.Finding{
		ID:       "gateway_error",
		Severity: core.SeverityCritical,
		Title:    "Gateway error: " + err.Error(),
		Details:  err.Error(),
	}
}

func (a *Auditor) token(context.Context) []core.Finding {
	if a.TokenSet {
		return []core.Finding{{ID: "token_set", Severity: core.SeverityInfo, Title: "Bearer token configured"}}
	}
	return []core.Finding{{ID: "no_token", Severity: core.SeverityMedium, Title: "No OPENCLAW_GATEWAY_TOKEN set"}}
}

func (a *Auditor) bind(context.Context) []core.Finding {
	return BindFindings(a.BaseURL)
}

// BindFindings applies the substring heuristic to a gateway URL. It matches
// text, not the parsed host, so http://localhost:18789 reports bind_exposed.
func BindFindings(baseURL string) []core.Finding {
	switch {
	case strings.Contains(baseURL, "0.0.0.0"),
		strings.Contains(baseURL, ":18789") && !strings.Contains(baseURL, "127.0.0.1"):
		return []core.Finding{{ID: "bind_exposed", Severity: core.SeverityHigh, Title: "Gateway may be bound to 0.0.0.0"}}
	case strings.Contains(baseURL, "127.0.0.1"), strings.Contains(baseURL, "localhost"):
		return []core.Finding{{ID: "bind_loopback", Severity: core.SeverityInfo, Title: "Gateway URL is loopback"}}
	}
	return nil
}

func (a *Auditor) doctor(ctx context.Context) []core.Finding {
	if a.Doctor == nil {
		return []core.Finding{{ID: "no_cli", Severity: core.SeverityMedium, Title: "openclaw CLI not found"}}
	}
	report, err := a.Doctor.Doctor(ctx)
	switch {
	case err == nil:
		return []core.Finding{{ID: "doctor_ok", Severity: core.SeverityInfo, Title: "openclaw doctor passed"}}
	case errors.Is(err, doctor.ErrNotFound):
		return []core.Finding{{ID: "no_cli", Severity: core.SeverityMedium, Title: "openclaw CLI not found"}}
	}
	details := report.Output()
	if strings.TrimSpace(details) == "" {
		details = err.Error()
	}
	return []core.Finding{{
		ID:       "doctor_failed",
		Severity: core.SeverityHigh,
		Title:    fmt.Sprintf("openclaw doctor exited %d", report.ExitCode),
		Details:  details,
	}}
}
