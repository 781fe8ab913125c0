// Package gateway talks to the OpenClaw Gateway HTTP API: the Tools Invoke
// endpoint and the wake/agent webhooks. Every call is a single JSON request
// with no retries, and every outcome is reported as a core.Envelope.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/telemetry"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultSessionKey = "main"

	MsgInvoked     = "Tool invoked successfully."
	MsgUnreachable = "Could not reach backend. Is it running?"
	MsgMalformed   = "Backend returned a malformed payload"
	MsgToolFailed  = "Tool invocation failed"

	maxResponseBytes = 8 << 20
)

// InvokeRequest is one Tools Invoke call. Args may be nil.
type InvokeRequest struct {
	Tool       string
	Action     string
	Args       map[string]any
	SessionKey string
}

// AgentHook is the body of POST /hooks/agent.
type AgentHook struct {
	Message    string
	SessionKey string
	Deliver    bool
	Channel    string
	To         string
}

type Option func(*Client)

// WithTimeout bounds each call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport replaces the base round tripper (tests, proxies).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client owns one HTTP connection handle, created on first use and released
// by Close. A Client is safe for concurrent use, though callers normally make
// one per operation.
type Client struct {
	baseURL   string
	token     string
	timeout   time.Duration
	transport http.RoundTripper
	logger    *slog.Logger

	mu         sync.Mutex
	httpClient *http.Client
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) HasToken() bool { return c.token != "" }

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   c.timeout,
			Transport: telemetry.Transport(c.transport),
		}
	}
	return c.httpClient
}

// Close releases idle connections. The Client may be reused afterwards; a
// fresh handle is built on the next call.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
}

type invokeResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// Invoke performs POST /tools/invoke. Backend and transport failures come
// back as failure envelopes; the error return is reserved for requests that
// are rejected before any I/O.
func (c *Client) Invoke(ctx context.Context, req InvokeRequest) (core.Envelope, error) {
	tool := strings.TrimSpace(req.Tool)
	if tool == "" {
		return core.Envelope{}, core.Errorf(core.CodeInvalidRequest, "tool name is required")
	}
	args := req.Args
	if args == nil {
		args = map[string]any{}
	}
	sessionKey := req.SessionKey
	if sessionKey == "" {
		sessionKey = DefaultSessionKey
	}
	body := map[string]any{"tool": tool, "args": args, "sessionKey": sessionKey}
	if req.Action != "" {
		body["action"] = req.Action
	}

	const op = "tools invoke"
	status, raw, err := c.post(ctx, "/tools/invoke", body)
	if err != nil {
		return core.Envelope{}, err
	}
	if env, failed := c.classify(op, tool, status, raw); failed {
		return env, nil
	}

	var resp invokeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		telemetry.IncBackendError("gateway", core.CodeBackendPayload)
		c.logger.Warn("gateway payload not json", "operation", op, "tool", tool, "err", err)
		return core.Failure(MsgMalformed, fmt.Sprintf("decode %s response: %v", op, err)), nil
	}
	if !resp.OK {
		msg, detail := toolError(resp.Error)
		return core.Failure(msg, detail), nil
	}
	return core.Success(MsgInvoked, rawData(resp.Result)), nil
}

// Wake triggers POST /hooks/wake.
func (c *Client) Wake(ctx context.Context, text, mode string) (core.Envelope, error) {
	if mode == "" {
		mode = "now"
	}
	const op = "hooks wake"
	status, raw, err := c.post(ctx, "/hooks/wake", map[string]any{"text": text, "mode": mode})
	if err != nil {
		return core.Envelope{}, err
	}
	if env, failed := c.classify(op, "wake", status, raw); failed {
		return env, nil
	}
	return core.Success("Wake triggered successfully.", nil), nil
}

// RunAgent triggers POST /hooks/agent and returns the backend's JSON reply as data.
func (c *Client) RunAgent(ctx context.Context, hook AgentHook) (core.Envelope, error) {
	if strings.TrimSpace(hook.Message) == "" {
		return core.Envelope{}, core.Errorf(core.CodeInvalidRequest, "agent message is required")
	}
	sessionKey := hook.SessionKey
	if sessionKey == "" {
		sessionKey = DefaultSessionKey
	}
	body := map[string]any{"message": hook.Message, "sessionKey": sessionKey, "deliver": hook.Deliver}
	if hook.Channel != "" {
		body["channel"] = hook.Channel
	}
	if hook.To != "" {
		body["to"] = hook.To
	}

	const op = "hooks agent"
	status, raw, err := c.post(ctx, "/hooks/agent", body)
	if err != nil {
		return core.Envelope{}, err
	}
	if env, failed := c.classify(op, "agent", status, raw); failed {
		return env, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return core.Success("Agent hook triggered successfully.", nil), nil
	}
	if !json.Valid(trimmed) {
		telemetry.IncBackendError("gateway", core.CodeBackendPayload)
		return core.Failure(MsgMalformed, op+" response is not JSON"), nil
	}
	return core.Success("Agent hook triggered successfully.", json.RawMessage(trimmed)), nil
}

// transportFailure marks a request that never produced an HTTP response.
const transportFailure = -1

// post sends body as JSON. A transport failure is reported as status -1 with
// the error text in the returned bytes; err is only set for bad input.
func (c *Client) post(ctx context.Context, path string, body any) (int, []byte, error) {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return 0, nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, core.Errorf(core.CodeInvalidRequest, "marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, core.Errorf(core.CodeInvalidRequest, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client().Do(httpReq)
	if err != nil {
		return transportFailure, []byte(err.Error()), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportFailure, []byte(fmt.Sprintf("read response: %v", err)), nil
	}
	return resp.StatusCode, raw, nil
}

// classify turns transport failures and non-2xx statuses into failure envelopes.
func (c *Client) classify(op, tool string, status int, raw []byte) (core.Envelope, bool) {
	switch {
	case status == transportFailure:
		telemetry.IncBackendError("gateway", core.CodeBackendUnreachable)
		c.logger.Warn("gateway request failed", "operation", op, "tool", tool, "err", string(raw))
		return core.Failure(MsgUnreachable, string(raw)), true
	case status < 200 || status > 299:
		telemetry.IncBackendError("gateway", core.CodeBackendStatus)
		telemetry.IncBackendStatus("gateway", status)
		apiErr := &core.APIError{Operation: op, StatusCode: status, Body: string(raw)}
		c.logger.Warn("gateway returned error status", "operation", op, "tool", tool, "status", status)
		return core.Failure(fmt.Sprintf("Backend returned %d", status), apiErr.Error()), true
	}
	return core.Envelope{}, false
}

func (c *Client) endpoint(path string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", core.Errorf(core.CodeInvalidRequest, "invalid gateway url %q: %v", c.baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", core.Errorf(core.CodeInvalidRequest, "invalid gateway url %q: need http(s)://host", c.baseURL)
	}
	return c.baseURL + path, nil
}

// toolError extracts the failure message from an {"ok":false} body. The raw
// error JSON is kept as the diagnostic string.
func toolError(raw json.RawMessage) (string, string) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return MsgToolFailed, ""
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &obj); err == nil && obj.Message != "" {
		return obj.Message, string(trimmed)
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil && s != "" {
		return s, string(trimmed)
	}
	return MsgToolFailed, string(trimmed)
}

// rawData keeps the result bytes exactly as sent; an absent or null result
// yields no data.
func rawData(raw json.RawMessage) any {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}
