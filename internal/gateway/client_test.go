package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
)

func TestInvokeSuccessKeepsResultBytes(t *testing.T) {
	results := []string{
		`{"sessions":[{"key":"main","age":12}],"count":1}`,
		`[1,2,3]`,
		`"plain string"`,
		`42`,
		`{"nested":{"a":[true,false,null]},"unicode":"é"}`,
	}

	for _, result := range results {
		t.Run(result, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"ok":true,"result":`+result+`}`)
			}))
			defer srv.Close()

			c := New(srv.URL, "")
			defer c.Close()

			env, err := c.Invoke(context.Background(), InvokeRequest{Tool: "sessions_list"})
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if !env.Success {
				t.Fatalf("expected success, got %+v", env)
			}
			if env.Message != MsgInvoked {
				t.Fatalf("message = %q", env.Message)
			}
			raw, ok := env.Data.(json.RawMessage)
			if !ok {
				t.Fatalf("data type = %T, want json.RawMessage", env.Data)
			}
			if string(raw) != result {
				t.Fatalf("data = %s, want %s", raw, result)
			}
		})
	}
}

func TestInvokeRequestBody(t *testing.T) {
	var got map[string]any
	var auth, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tools/invoke" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "tok-123")
	defer c.Close()

	env, err := c.Invoke(context.Background(), InvokeRequest{
		Tool:   "routing",
		Action: "get_routing_rules",
		Args:   map[string]any{"channel": "telegram"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !env.Success || env.Data != nil {
		t.Fatalf("expected success without data, got %+v", env)
	}
	if auth != "Bearer tok-123" {
		t.Fatalf("Authorization = %q", auth)
	}
	if contentType != "application/json" {
		t.Fatalf("Content-Type = %q", contentType)
	}
	if got["tool"] != "routing" || got["action"] != "get_routing_rules" || got["sessionKey"] != "main" {
		t.Fatalf("unexpected body: %v", got)
	}
	args, ok := got["args"].(map[string]any)
	if !ok || args["channel"] != "telegram" {
		t.Fatalf("unexpected args: %v", got["args"])
	}
}

func TestInvokeOmitsActionAndAuthWhenUnset(t *testing.T) {
	var got map[string]any
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	defer c.Close()

	if _, err := c.Invoke(context.Background(), InvokeRequest{Tool: "sessions_list", SessionKey: "ops"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if hasAuth {
		t.Fatal("Authorization header must be absent without a token")
	}
	if _, ok := got["action"]; ok {
		t.Fatalf("action should be omitted: %v", got)
	}
	if got["sessionKey"] != "ops" {
		t.Fatalf("sessionKey = %v", got["sessionKey"])
	}
	if args, ok := got["args"].(map[string]any); !ok || len(args) != 0 {
		t.Fatalf("nil args should be sent as {}: %v", got["args"])
	}
}

func TestInvokeToolFailure(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantMsg   string
		wantError string
	}{
		{name: "message", body: `{"ok":false,"error":{"message":"tool not allowed","code":"forbidden"}}`, wantMsg: "tool not allowed", wantError: `{"message":"tool not allowed","code":"forbidden"}`},
		{name: "no message", body: `{"ok":false,"error":{"code":"x"}}`, wantMsg: MsgToolFailed, wantError: `{"code":"x"}`},
		{name: "no error", body: `{"ok":false}`, wantMsg: MsgToolFailed},
		{name: "string error", body: `{"ok":false,"error":"routing tool missing"}`, wantMsg: "routing tool missing", wantError: `"routing tool missing"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := New(srv.URL, "")
			defer c.Close()

			env, err := c.Invoke(context.Background(), InvokeRequest{Tool: "routing"})
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if env.Success {
				t.Fatal("expected failure")
			}
			if env.Data != nil {
				t.Fatalf("failure must not carry data: %v", env.Data)
			}
			if env.Message != tt.wantMsg {
				t.Fatalf("message = %q, want %q", env.Message, tt.wantMsg)
			}
			if env.Error != tt.wantError {
				t.Fatalf("error = %q, want %q", env.Error, tt.wantError)
			}
		})
	}
}

func TestInvokeHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	defer c.Close()

	env, err := c.Invoke(context.Background(), InvokeRequest{Tool: "sessions_list"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if env.Success {
		t.Fatal("expected failure")
	}
	if env.Message != "Backend returned 503" {
		t.Fatalf("message = %q", env.Message)
	}
	if !strings.HasPrefix(env.Error, "tools invoke HTTP 503: gateway overloaded") {
		t.Fatalf("error = %q", env.Error)
	}
}

func TestInvokeMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>not json</html>")
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	defer c.Close()

	env, err := c.Invoke(context.Background(), InvokeRequest{Tool: "sessions_list"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if env.Success || env.Message != MsgMalformed {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestInvokeConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := New("http://"+addr, "")
	defer c.Close()

	env, err := c.Invoke(context.Background(), InvokeRequest{Tool: "sessions_list"})
	if err != nil {
		t.Fatalf("connection failures must not surface as errors: %v", err)
	}
	if env.Success {
		t.Fatal("expected failure")
	}
	if env.Message != MsgUnreachable {
		t.Fatalf("message = %q", env.Message)
	}
	if !strings.Contains(env.Message, "Is it running?") {
		t.Fatalf("message lacks connectivity hint: %q", env.Message)
	}
	if env.Error == "" {
		t.Fatal("expected transport error text")
	}
}

func TestInvokeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, "", WithTimeout(50*time.Millisecond))
	defer c.Close()

	start := time.Now()
	env, err := c.Invoke(context.Background(), InvokeRequest{Tool: "sessions_list"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if env.Success || env.Message != MsgUnreachable {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout was not enforced")
	}
}

func TestInvokeContractErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		base string
		req  InvokeRequest
	}{
		{name: "empty tool", base: srv.URL, req: InvokeRequest{Tool: "  "}},
		{name: "bad base url", base: "127.0.0.1:18789", req: InvokeRequest{Tool: "sessions_list"}},
		{name: "unmarshalable args", base: srv.URL, req: InvokeRequest{Tool: "x", Args: map[string]any{"ch": make(chan int)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.base, "")
			defer c.Close()

			_, err := c.Invoke(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected contract error")
			}
			var coded core.CodedError
			if !errors.As(err, &coded) || coded.ErrorCode() != core.CodeInvalidRequest {
				t.Fatalf("expected invalid_request error, got %v", err)
			}
		})
	}
	if calls.Load() != 0 {
		t.Fatalf("contract errors must not reach the network, got %d calls", calls.Load())
	}
}

func TestCloseAllowsReuse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true,"result":[]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	for i := 0; i < 2; i++ {
		env, err := c.Invoke(context.Background(), InvokeRequest{Tool: "sessions_list"})
		if err != nil || !env.Success {
			t.Fatalf("call %d: env=%+v err=%v", i, env, err)
		}
		c.Close()
	}
	c.Close()
}

func TestWake(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hooks/wake" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	defer c.Close()

	env, err := c.Wake(context.Background(), "Wake triggered via clawd-mcp", "")
	if err != nil {
		t.Fatalf("Wake: %v", err)
	}
	if !env.Success || env.Message != "Wake triggered successfully." {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if got["text"] != "Wake triggered via clawd-mcp" || got["mode"] != "now" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestWakeHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "hooks disabled", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	defer c.Close()

	env, err := c.Wake(context.Background(), "hi", "now")
	if err != nil {
		t.Fatalf("Wake: %v", err)
	}
	if env.Success || env.Message != "Backend returned 404" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestRunAgent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hooks/agent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"runId":"r-1"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	defer c.Close()

	env, err := c.RunAgent(context.Background(), AgentHook{Message: "summarize inbox", Channel: "telegram", To: "@me"})
	if err != nil {
		t.Fatalf("RunAgent: %v", err)
	}
	if !env.Success || env.Message != "Agent hook triggered successfully." {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if raw, _ := env.Data.(json.RawMessage); string(raw) != `{"runId":"r-1"}` {
		t.Fatalf("data = %v", env.Data)
	}
	if got["message"] != "summarize inbox" || got["sessionKey"] != "main" || got["deliver"] != false {
		t.Fatalf("unexpected body: %v", got)
	}
	if got["channel"] != "telegram" || got["to"] != "@me" {
		t.Fatalf("unexpected routing fields: %v", got)
	}

	if _, err := c.RunAgent(context.Background(), AgentHook{}); err == nil {
		t.Fatal("expected error for empty message")
	}
}
