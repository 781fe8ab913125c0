// Package routing resolves the channel-to-agent routing table, falling back
// to the Gateway's own openclaw.json when the backend has no routing tool.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/gateway"
	"github.com/clawd-mcp/clawd-mcp/internal/telemetry"
)

const (
	Tool = "routing"

	OpGetRoutingRules     = "get_routing_rules"
	OpUpdateRouting       = "update_routing"
	OpTestRouting         = "test_routing"
	OpGetSessionByChannel = "get_session_by_channel"

	MsgLocalFallback = "Routing rules from local config (backend routing tool not available)."

	configFileName = "openclaw.json"
)

// Operations lists the routing tool actions in display order.
var Operations = []string{OpGetRoutingRules, OpUpdateRouting, OpTestRouting, OpGetSessionByChannel}

// Table maps channel names to agent identifiers. Source is set when the table
// was read from a local file.
type Table struct {
	Agents map[string]string `json:"agents"`
	Source string            `json:"source,omitempty"`
}

// Invoker is the slice of the gateway client the resolver needs.
type Invoker interface {
	Invoke(ctx context.Context, req gateway.InvokeRequest) (core.Envelope, error)
}

type Option func(*Resolver)

// WithHomeDir overrides the directory holding .openclaw/openclaw.json.
func WithHomeDir(dir string) Option {
	return func(r *Resolver) { r.homeDir = dir }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

type Resolver struct {
	invoker   Invoker
	workspace string
	homeDir   string
	logger    *slog.Logger
}

// NewResolver builds a resolver. workspace may be empty, in which case only
// the home-directory candidate is tried.
func NewResolver(invoker Invoker, workspace string, opts ...Option) *Resolver {
	r := &Resolver{invoker: invoker, workspace: workspace, logger: slog.Default()}
	if home, err := os.UserHomeDir(); err == nil {
		r.homeDir = home
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CandidatePaths returns the local config files tried, highest priority first.
func (r *Resolver) CandidatePaths() []string {
	var paths []string
	if r.workspace != "" {
		if abs, err := filepath.Abs(r.workspace); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(abs), configFileName))
		}
	}
	if r.homeDir != "" {
		paths = append(paths, filepath.Join(r.homeDir, ".openclaw", configFileName))
	}
	return paths
}

// GetRoutingRules asks the backend first, passing args through. On any
// backend failure it reads the first usable candidate file; if none is usable
// the backend failure is returned unchanged.
func (r *Resolver) GetRoutingRules(ctx context.Context, sessionKey string, args map[string]any) core.Envelope {
	env, err := r.invoker.Invoke(ctx, gateway.InvokeRequest{
		Tool:       Tool,
		Action:     OpGetRoutingRules,
		Args:       args,
		SessionKey: sessionKey,
	})
	if err != nil {
		env = core.Failure(fmt.Sprintf("Routing operation failed: %v", err), err.Error())
	}
	if env.Success {
		telemetry.IncRoutingResolution("backend")
		return env
	}

	for _, path := range r.CandidatePaths() {
		table, err := readTable(path)
		if err != nil {
			r.logger.Debug("routing candidate skipped", "path", path, "err", err)
			continue
		}
		telemetry.IncRoutingResolution("local_config")
		return core.Success(MsgLocalFallback, table)
	}

	telemetry.IncRoutingResolution("unavailable")
	return env
}

type localConfig struct {
	Routing *struct {
		Agents map[string]string `json:"agents"`
	} `json:"routing"`
}

func readTable(path string) (Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Table{}, err
	}
	if !info.Mode().IsRegular() {
		return Table{}, fmt.Errorf("%s is not a regular file", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg localConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Table{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Routing == nil || cfg.Routing.Agents == nil {
		return Table{}, fmt.Errorf("%s has no routing.agents mapping", path)
	}
	return Table{Agents: cfg.Routing.Agents, Source: path}, nil
}
