package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clawd-mcp/clawd-mcp/internal/config"
	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/tools"
)

func newTestServer(t *testing.T, allowlist, gatewayURL string) *Server {
	t.Helper()
	ws := t.TempDir()
	if err := os.MkdirAll(filepath.Join(ws, "skills", "weather"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ws, "skills", "weather", "SKILL.md"), []byte("# Weather\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := &config.Config{
		Gateway:       config.GatewayConfig{URL: gatewayURL},
		Doctor:        config.DoctorConfig{Path: filepath.Join(t.TempDir(), "missing")},
		WorkspacePath: ws,
	}
	svc := tools.New(cfg, tools.WithHomeDir(t.TempDir()))
	t.Cleanup(svc.Close)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewServer(svc, core.NewPolicy(allowlist), logger, "test")
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.serveWithTransport(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		session.Close()
		cancel()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop after cancel")
		}
	})
	return session
}

func callEnvelope(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) core.Envelope {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content = %+v", res.Content)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", res.Content[0])
	}
	var env core.Envelope
	if err := json.Unmarshal([]byte(text.Text), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestListToolsRegistersAll(t *testing.T) {
	session := connect(t, newTestServer(t, "", "http://127.0.0.1:1"))

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	var got []string
	for _, tool := range res.Tools {
		got = append(got, tool.Name)
		if tool.Description == "" {
			t.Fatalf("tool %s has no description", tool.Name)
		}
	}
	var want []string
	for _, d := range Definitions() {
		want = append(want, d.Name)
	}
	sort.Strings(got)
	sort.Strings(want)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("tools = %v, want %v", got, want)
	}
}

func TestAllowlistFiltersTools(t *testing.T) {
	session := connect(t, newTestServer(t, "clawd_skills, clawd_gateway", "http://127.0.0.1:1"))

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(res.Tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(res.Tools))
	}
	if _, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: tools.NameMoltbook, Arguments: map[string]any{"operation": "status"}}); err == nil {
		t.Fatal("expected error calling a filtered tool")
	}
}

func TestCallSkillsList(t *testing.T) {
	session := connect(t, newTestServer(t, "", "http://127.0.0.1:1"))

	env := callEnvelope(t, session, tools.NameSkills, map[string]any{"operation": "list"})
	if !env.Success || env.Message != "Found 1 skills in workspace." {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestCallUnknownOperationIsEnvelope(t *testing.T) {
	session := connect(t, newTestServer(t, "", "http://127.0.0.1:1"))

	env := callEnvelope(t, session, tools.NameSessions, map[string]any{"operation": "purge"})
	if env.Success || !strings.HasPrefix(env.Message, "Unknown operation: purge.") {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestCallGatewayStatusForwardsResult(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true,"result":{"sessions":[]}}`)
	}))
	defer gw.Close()

	session := connect(t, newTestServer(t, "", gw.URL))
	env := callEnvelope(t, session, tools.NameGateway, map[string]any{"operation": "status"})
	if !env.Success {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	data, _ := json.Marshal(env.Data)
	if string(data) != `{"sessions":[]}` {
		t.Fatalf("data = %s", data)
	}
}

func TestStreamableHTTPHandler(t *testing.T) {
	s := newTestServer(t, "", "http://127.0.0.1:1")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: srv.URL}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	env := callEnvelope(t, session, tools.NameSecurity, map[string]any{"operation": "recommendations"})
	if !env.Success {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestListToolsIncludesInputSchema(t *testing.T) {
	s := newTestServer(t, "clawd_channels", "http://127.0.0.1:1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := s.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(got) != 1 || got[0].Name != tools.NameChannels {
		t.Fatalf("tools = %+v", got)
	}
	raw, err := json.Marshal(got[0].InputSchema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	for _, field := range []string{`"operation"`, `"channel"`, `"limit"`} {
		if !strings.Contains(string(raw), field) {
			t.Fatalf("schema %s missing %s", raw, field)
		}
	}
}
