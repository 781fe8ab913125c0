// Package http serves the dashboard API: JSON views over the same operations
// the MCP tools expose, plus health, version and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/doctor"
	"github.com/clawd-mcp/clawd-mcp/internal/ollama"
	"github.com/clawd-mcp/clawd-mcp/internal/routing"
	"github.com/clawd-mcp/clawd-mcp/internal/skills"
	"github.com/clawd-mcp/clawd-mcp/internal/telemetry"
	"github.com/clawd-mcp/clawd-mcp/internal/tools"
)

type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

type Server struct {
	svc       *tools.Service
	srv       *http.Server
	logger    *slog.Logger
	build     BuildInfo
	jwtSecret []byte
}

const maxRequestBodyBytes = 1 << 20

// NewServer builds the dashboard. A non-empty jwtSecret requires an HS256
// bearer token on every /api/ route.
func NewServer(addr string, svc *tools.Service, jwtSecret string, logger *slog.Logger, build BuildInfo) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		logger: logger,
		build:  build,
	}
	if jwtSecret != "" {
		s.jwtSecret = []byte(jwtSecret)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/openclaw/status", s.requireAuth(s.handleOpenClawStatus))
	mux.HandleFunc("GET /api/gateway/status", s.requireAuth(s.handleGatewayStatus))
	mux.HandleFunc("GET /api/security/audit", s.requireAuth(s.handleSecurityAudit))
	mux.HandleFunc("POST /api/ask", s.requireAuth(s.handleAsk))
	mux.HandleFunc("POST /api/channels", s.requireAuth(s.handleChannels))
	mux.HandleFunc("POST /api/routing", s.requireAuth(s.handleRouting))
	mux.HandleFunc("GET /api/skills", s.requireAuth(s.handleSkills))
	mux.HandleFunc("GET /api/moltbook/feed", s.requireAuth(s.handleMoltbookFeed))
	mux.HandleFunc("GET /api/clawnews", s.requireAuth(s.handleClawNews))
	mux.HandleFunc("GET /api/ollama/health", s.requireAuth(s.handleOllamaHealth))
	mux.HandleFunc("GET /api/ollama/tags", s.requireAuth(s.handleOllamaTags))
	mux.HandleFunc("POST /api/ollama/generate", s.requireAuth(s.handleOllamaGenerate))
	mux.HandleFunc("POST /api/ollama/chat", s.requireAuth(s.handleOllamaChat))
	mux.HandleFunc("POST /api/ollama/pull", s.requireAuth(s.handleOllamaPull))
	mux.HandleFunc("DELETE /api/ollama/delete", s.requireAuth(s.handleOllamaDelete))

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      withLogging(logger, telemetry.Handler(mux, "dashboard")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("http server starting", "addr", s.srv.Addr)
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.build)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = io.WriteString(w, telemetry.RenderPrometheus())
}

type openClawStatus struct {
	CLIInstalled bool    `json:"cli_installed"`
	Version      *string `json:"version,omitempty"`
}

func (s *Server) handleOpenClawStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.DoctorRunner().Version(r.Context())
	if errors.Is(err, doctor.ErrNotFound) {
		writeJSON(w, http.StatusOK, openClawStatus{CLIInstalled: false})
		return
	}
	status := openClawStatus{CLIInstalled: true}
	if v := strings.TrimSpace(report.Output()); v != "" {
		status.Version = &v
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Gateway(r.Context(), tools.GatewayArgs{Operation: "status"}))
}

func (s *Server) handleSecurityAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.AuditReport(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report.Findings)
}

type askBody struct {
	Message string `json:"message"`
}

// handleAsk forwards a dashboard prompt to the main session as a wake event.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body askBody
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeErr(w, http.StatusBadRequest, "message required")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Agent(r.Context(), tools.AgentArgs{Operation: "wake", Message: body.Message}))
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	var body tools.ChannelsArgs
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if !slices.Contains(tools.ChannelOperations, body.Operation) {
		writeErr(w, http.StatusBadRequest, "Unknown operation. Use one of: "+strings.Join(tools.ChannelOperations, ", "))
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Channels(r.Context(), body))
}

func (s *Server) handleRouting(w http.ResponseWriter, r *http.Request) {
	var body tools.RoutingArgs
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if !slices.Contains(routing.Operations, body.Operation) {
		writeErr(w, http.StatusBadRequest, "Unknown operation. Use one of: "+strings.Join(routing.Operations, ", "))
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Routing(r.Context(), body))
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	dir := skills.Dir(s.svc.Workspace(r.URL.Query().Get("workspace_path")))
	writeJSON(w, http.StatusOK, skills.List(dir))
}

func (s *Server) handleMoltbookFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 20, 100)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.svc.MoltbookClient().Feed(r.Context(), limit))
}

// parseLimit reads ?limit=, rejecting values outside 1..upper.
func parseLimit(r *http.Request, def, upper int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer")
	}
	if n < 1 || n > upper {
		return 0, fmt.Errorf("limit must be between 1 and %d", upper)
	}
	return n, nil
}

func (s *Server) handleOllamaHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": s.svc.OllamaClient().Healthy(r.Context())})
}

func (s *Server) handleOllamaTags(w http.ResponseWriter, r *http.Request) {
	models, err := s.svc.OllamaClient().Models(r.Context())
	if err != nil {
		s.writeBackendErr(w, "ollama tags", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "models": models})
}

type generateBody struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
}

func (s *Server) handleOllamaGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	res, err := s.svc.OllamaClient().Generate(r.Context(), body.Model, body.Prompt, body.System)
	if err != nil {
		s.writeBackendErr(w, "ollama generate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "response": res.Response, "raw": res.Raw})
}

type chatBody struct {
	Model    string           `json:"model"`
	Messages []ollama.Message `json:"messages"`
	System   string           `json:"system,omitempty"`
}

func (s *Server) handleOllamaChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	res, err := s.svc.OllamaClient().Chat(r.Context(), body.Model, body.Messages, body.System)
	if err != nil {
		s.writeBackendErr(w, "ollama chat", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  res.Message,
		"response": res.Response,
		"raw":      res.Raw,
	})
}

type modelBody struct {
	Name string `json:"name"`
}

func (s *Server) handleOllamaPull(w http.ResponseWriter, r *http.Request) {
	var body modelBody
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	raw, err := s.svc.OllamaClient().Pull(r.Context(), body.Name)
	if err != nil {
		s.writeBackendErr(w, "ollama pull", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "raw": raw})
}

func (s *Server) handleOllamaDelete(w http.ResponseWriter, r *http.Request) {
	var body modelBody
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.svc.OllamaClient().Delete(r.Context(), body.Name); err != nil {
		s.writeBackendErr(w, "ollama delete", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) writeBackendErr(w http.ResponseWriter, op string, err error) {
	info := core.ClassifyError(err, http.StatusBadGateway)
	s.logger.Error("dashboard backend call failed", "operation", op, "code", info.Code, "err", err)
	writeJSON(w, info.HTTPStatus, map[string]string{"error": info.Message, "code": info.Code})
}

// requireAuth validates an HS256 bearer token when a secret is configured.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if len(s.jwtSecret) == 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeErr(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		_, err := jwt.Parse(strings.TrimSpace(raw), func(*jwt.Token) (any, error) {
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			s.logger.Warn("dashboard auth rejected", "path", r.URL.Path, "err", err)
			writeErr(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
