// Package mcp exposes the clawd tools over the Model Context Protocol, on
// stdio or streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clawd-mcp/clawd-mcp/internal/config"
	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/telemetry"
	"github.com/clawd-mcp/clawd-mcp/internal/tools"
)

const ServerName = "clawd-mcp"

// Definition names one tool and the text shown to MCP clients.
type Definition struct {
	Name        string
	Description string
}

// Definitions lists every tool in registration order.
func Definitions() []Definition {
	return []Definition{
		{tools.NameGateway, "OpenClaw Gateway status and health: status, health (Tools Invoke probe), doctor (runs the openclaw CLI)."},
		{tools.NameSessions, "OpenClaw session operations for agent-to-agent coordination: list, history, send."},
		{tools.NameChannels, "OpenClaw channel operations: list_channels, get_channel_config, send_message, get_recent_messages."},
		{tools.NameRouting, "OpenClaw routing topology: get_routing_rules (falls back to local openclaw.json), update_routing, test_routing, get_session_by_channel."},
		{tools.NameAgent, "OpenClaw agent webhooks: wake, run_agent (no channel delivery), send_message (optional delivery)."},
		{tools.NameSecurity, "OpenClaw security audit and hardening: audit, check_skills, validate_config, recommendations, provision_sandbox."},
		{tools.NameSkills, "OpenClaw workspace skills: list, read."},
		{tools.NameMoltbook, "Moltbook social network for agents: status, feed, search, post, comment, upvote, heartbeat_dm, heartbeat_run."},
		{tools.NameOllama, "Local Ollama models: health, models, generate, chat."},
		{tools.NameVoice, "OpenClaw text to speech through the Gateway tts tool: tts (requires text)."},
		{tools.NameDisconnect, "Steps to disconnect from OpenClaw and optionally remove it. Changes nothing."},
	}
}

type Server struct {
	svc    *tools.Service
	policy *core.Policy
	logger *slog.Logger

	mcpServer *mcp.Server
}

// NewServer registers every tool the policy allows.
func NewServer(svc *tools.Service, policy *core.Policy, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	s := &Server{
		svc:       svc,
		policy:    policy,
		logger:    logger,
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil),
	}

	desc := make(map[string]string)
	for _, d := range Definitions() {
		desc[d.Name] = d.Description
	}
	addTool(s, tools.NameGateway, desc, svc.Gateway)
	addTool(s, tools.NameSessions, desc, svc.Sessions)
	addTool(s, tools.NameChannels, desc, svc.Channels)
	addTool(s, tools.NameRouting, desc, svc.Routing)
	addTool(s, tools.NameAgent, desc, svc.Agent)
	addTool(s, tools.NameSecurity, desc, svc.Security)
	addTool(s, tools.NameSkills, desc, svc.Skills)
	addTool(s, tools.NameMoltbook, desc, svc.Moltbook)
	addTool(s, tools.NameOllama, desc, svc.Ollama)
	addTool(s, tools.NameVoice, desc, svc.Voice)
	addTool(s, tools.NameDisconnect, desc, svc.Disconnect)
	return s
}

type operationNamer interface {
	OperationName() string
}

func addTool[In any](s *Server, name string, desc map[string]string, fn func(context.Context, In) core.Envelope) {
	if err := s.policy.CheckTool(name); err != nil {
		s.logger.Info("tool not registered", "tool", name, "err", err)
		return
	}
	tool := &mcp.Tool{Name: name, Description: desc[name]}
	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, core.Envelope, error) {
		traceID := uuid.New().String()
		start := time.Now()
		env := fn(ctx, in)
		elapsed := time.Since(start)

		status := "ok"
		if !env.Success {
			status = "error"
		}
		telemetry.IncToolCall(name, status)
		telemetry.ObserveToolDuration(name, elapsed)

		var op string
		if n, ok := any(in).(operationNamer); ok {
			op = n.OperationName()
		}
		s.logger.Info("tool call completed",
			"trace_id", traceID,
			"tool", name,
			"operation", op,
			"success", env.Success,
			"duration_ms", elapsed.Milliseconds(),
		)
		return nil, env, nil
	})
}

// Run serves on the configured transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport, httpAddr string) error {
	if transport == config.TransportHTTP {
		return s.ListenAndServe(ctx, httpAddr)
	}
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

func (s *Server) serveWithTransport(ctx context.Context, t mcp.Transport) error {
	err := s.mcpServer.Run(ctx, t)
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handler returns the streamable HTTP handler for the MCP endpoint.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcpServer }, nil)
}

// ListenAndServe serves MCP at /mcp on addr and shuts down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", telemetry.Handler(s.Handler(), "mcp"))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mcp http server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ListTools connects an in-memory client and returns the tools as clients
// see them, input schemas included.
func (s *Server) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	done := make(chan error, 1)
	go func() { done <- s.serveWithTransport(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: ServerName + "-introspect", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	res, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}
