// Package tools implements the operations behind every clawd MCP tool. Each
// operation returns a core.Envelope; transport adapters only serialize it.
package tools

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/clawd-mcp/clawd-mcp/internal/config"
	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/doctor"
	"github.com/clawd-mcp/clawd-mcp/internal/gateway"
	"github.com/clawd-mcp/clawd-mcp/internal/moltbook"
	"github.com/clawd-mcp/clawd-mcp/internal/ollama"
)

// Tool names as exposed over MCP.
const (
	NameGateway  = "clawd_gateway"
	NameSessions = "clawd_sessions"
	NameChannels = "clawd_channels"
	NameRouting  = "clawd_routing"
	NameAgent    = "clawd_agent"
	NameSecurity = "clawd_security"
	NameSkills   = "clawd_skills"
	NameMoltbook = "clawd_moltbook"
	NameOllama   = "clawd_ollama"

	NameVoice      = "clawd_voice"
	NameDisconnect = "clawd_openclaw_disconnect"
)

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTransport sets the base round tripper for every outbound client.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Service) { s.transport = rt }
}

// WithHomeDir overrides the home directory used for ~/.openclaw lookups.
func WithHomeDir(dir string) Option {
	return func(s *Service) { s.homeDir = dir }
}

// WithDoctor replaces the CLI runner built from config.
func WithDoctor(r *doctor.Runner) Option {
	return func(s *Service) { s.doctor = r }
}

// Service holds the long-lived backend clients. Gateway clients are created
// per call and closed when the call ends.
type Service struct {
	cfg       *config.Config
	logger    *slog.Logger
	transport http.RoundTripper
	homeDir   string

	doctor   *doctor.Runner
	moltbook *moltbook.Client
	ollama   *ollama.Client
}

func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg, logger: slog.Default()}
	if home, err := os.UserHomeDir(); err == nil {
		s.homeDir = home
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.doctor == nil {
		s.doctor = doctor.NewRunner(cfg.Doctor.Path, cfg.Doctor.Timeout)
	}
	s.moltbook = moltbook.New(cfg.Moltbook.URL, cfg.Moltbook.APIKey,
		moltbook.WithTransport(s.transport), moltbook.WithLogger(s.logger))
	s.ollama = ollama.New(cfg.Ollama.URL,
		ollama.WithTransport(s.transport), ollama.WithLogger(s.logger))
	return s
}

func (s *Service) Close() {
	s.moltbook.Close()
	s.ollama.Close()
}

func (s *Service) Config() *config.Config { return s.cfg }

func (s *Service) DoctorRunner() *doctor.Runner { return s.doctor }

func (s *Service) MoltbookClient() *moltbook.Client { return s.moltbook }

func (s *Service) OllamaClient() *ollama.Client { return s.ollama }

// NewGateway builds a fresh gateway client. Callers must Close it.
func (s *Service) NewGateway() *gateway.Client {
	return gateway.New(s.cfg.Gateway.URL, s.cfg.Gateway.Token,
		gateway.WithTimeout(s.cfg.Gateway.Timeout),
		gateway.WithTransport(s.transport),
		gateway.WithLogger(s.logger),
	)
}

// Workspace resolves the workspace root: explicit value, then config, then
// ~/.openclaw/workspace.
func (s *Service) Workspace(explicit string) string {
	if w := strings.TrimSpace(explicit); w != "" {
		return w
	}
	if s.cfg.WorkspacePath != "" {
		return s.cfg.WorkspacePath
	}
	if s.homeDir != "" {
		return filepath.Join(s.homeDir, ".openclaw", "workspace")
	}
	return filepath.Join(".openclaw", "workspace")
}

func unknownOperation(op string, valid []string) core.Envelope {
	return core.Failure(fmt.Sprintf("Unknown operation: %s. Use one of: %s", op, strings.Join(valid, ", ")), "")
}

func sessionKey(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return gateway.DefaultSessionKey
}

// cloneArgs copies caller-supplied passthrough args so overrides never leak
// back into the request struct.
func cloneArgs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// OperationName lets transport adapters log the requested operation without
// knowing the concrete args type.
func (a GatewayArgs) OperationName() string  { return a.Operation }
func (a SessionsArgs) OperationName() string { return a.Operation }
func (a ChannelsArgs) OperationName() string { return a.Operation }
func (a RoutingArgs) OperationName() string  { return a.Operation }
func (a AgentArgs) OperationName() string    { return a.Operation }
func (a SecurityArgs) OperationName() string { return a.Operation }
func (a SkillsArgs) OperationName() string   { return a.Operation }
func (a MoltbookArgs) OperationName() string { return a.Operation }
func (a OllamaArgs) OperationName() string   { return a.Operation }
func (a VoiceArgs) OperationName() string    { return a.Operation }
