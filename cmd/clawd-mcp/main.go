package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/clawd-mcp/clawd-mcp/internal/config"
	"github.com/clawd-mcp/clawd-mcp/internal/core"
	httpsvr "github.com/clawd-mcp/clawd-mcp/internal/http"
	mcpsvr "github.com/clawd-mcp/clawd-mcp/internal/mcp"
	"github.com/clawd-mcp/clawd-mcp/internal/telemetry"
	"github.com/clawd-mcp/clawd-mcp/internal/tools"
)

var (
	version   = ""
	gitCommit = ""
	buildTime = ""
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: clawd-mcp [command]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve     Start the MCP server (default)")
	fmt.Fprintln(os.Stderr, "  audit     Run the security audit and print findings")
	fmt.Fprintln(os.Stderr, "            --fail-on SEVERITY  exit 1 at or above this severity (default high)")
	fmt.Fprintln(os.Stderr, "  version   Print build information")
}

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx)
	case "audit":
		var failed bool
		failed, err = runAudit(ctx, os.Args[2:])
		if err == nil && failed {
			cancel()
			os.Exit(1)
		}
	case "version":
		fmt.Printf("clawd-mcp %s (commit %s, built %s)\n", orDev(version), orDev(gitCommit), orDev(buildTime))
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// setupLogger writes JSON to stderr; stdout belongs to the stdio transport.
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging.Level)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing.OTLPEndpoint, orDev(version), func(err error) {
		logger.Warn("otel error", "err", err)
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	svc := tools.New(cfg, tools.WithLogger(logger))
	defer svc.Close()

	policy := core.NewPolicy(cfg.MCP.ToolAllowlist)

	logger.Info("effective config",
		"gateway_url", cfg.Gateway.URL,
		"gateway_token_set", cfg.Gateway.Token != "",
		"moltbook_url", cfg.Moltbook.URL,
		"ollama_url", cfg.Ollama.URL,
		"mcp_transport", cfg.MCP.Transport,
		"dashboard_listen", cfg.Dashboard.Listen,
		"tool_allowlist", policy.AllowedTools(),
		"tracing", cfg.Tracing.OTLPEndpoint != "",
	)

	errCh := make(chan error, 2)

	var dashboard *httpsvr.Server
	if cfg.Dashboard.Listen != "" {
		if cfg.Dashboard.JWTSecret == "" {
			logger.Warn("dashboard API is unauthenticated", "addr", cfg.Dashboard.Listen)
		}
		dashboard = httpsvr.NewServer(cfg.Dashboard.Listen, svc, cfg.Dashboard.JWTSecret, logger, httpsvr.BuildInfo{
			Version:   version,
			GitCommit: gitCommit,
			BuildTime: buildTime,
		})
		go func() {
			if err := dashboard.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("dashboard: %w", err)
			}
		}()
	}

	mcpServer := mcpsvr.NewServer(svc, policy, logger, orDev(version))
	go func() {
		errCh <- mcpServer.Run(ctx, cfg.MCP.Transport, cfg.MCP.HTTPListen)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", ctx.Err())
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("server error", "err", runErr)
		} else {
			// stdio client closed the session
			logger.Info("mcp session ended")
		}
	}

	if dashboard != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := dashboard.Shutdown(shutdownCtx); err != nil {
			logger.Warn("dashboard shutdown failed", "err", err)
		}
	}
	logger.Info("shutdown complete")
	return runErr
}

// runAudit prints findings and reports whether any reaches the --fail-on
// severity.
func runAudit(ctx context.Context, args []string) (bool, error) {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	failOn := fs.String("fail-on", string(core.SeverityHigh), "exit 1 when a finding is at or above this severity (info, medium, high, critical)")
	if err := fs.Parse(args); err != nil {
		return false, err
	}
	threshold, err := core.ParseSeverity(*failOn)
	if err != nil {
		return false, err
	}

	cfg, err := config.Load()
	if err != nil {
		return false, fmt.Errorf("loading config: %w", err)
	}
	svc := tools.New(cfg, tools.WithLogger(setupLogger("error")))
	defer svc.Close()

	report, err := svc.AuditReport(ctx)
	if err != nil {
		return false, err
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("clawd-mcp audit of %s\n\n", cfg.Gateway.URL)

	failed := false
	for _, f := range report.Findings {
		severityColor(f.Severity).Printf("  %-8s ", strings.ToUpper(string(f.Severity)))
		fmt.Printf("%s ", f.Title)
		gray.Printf("(%s)\n", f.ID)
		if f.Details != "" {
			gray.Printf("           %s\n", f.Details)
		}
		if f.Severity.AtLeast(threshold) {
			failed = true
		}
	}
	fmt.Println()
	if failed {
		color.New(color.FgRed).Printf("Audit found %s or worse issues.\n", threshold)
	} else {
		color.New(color.FgGreen).Printf("No %s or worse issues.\n", threshold)
	}
	return failed, nil
}

func severityColor(s core.Severity) *color.Color {
	switch s {
	case core.SeverityCritical, core.SeverityHigh:
		return color.New(color.FgRed, color.Bold)
	case core.SeverityMedium:
		return color.New(color.FgYellow)
	}
	return color.New(color.FgGreen)
}

func orDev(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}
