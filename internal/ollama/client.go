// Package ollama calls a local Ollama server for model listing and
// non-streaming inference.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/telemetry"
)

const (
	DefaultBaseURL = "http://localhost:11434"

	// DefaultSystemPrompt is used for chat when the caller sends none.
	DefaultSystemPrompt = "You are an expert assistant for OpenClaw and Moltbook. Answer concisely."

	healthTimeout    = 3 * time.Second
	listTimeout      = 10 * time.Second
	inferenceTimeout = 120 * time.Second
	pullTimeout      = 10 * time.Minute
	deleteTimeout    = 30 * time.Second
)

type Model struct {
	Name       string    `json:"name"`
	Model      string    `json:"model,omitempty"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateResult struct {
	Response string          `json:"response"`
	Raw      json.RawMessage `json:"raw"`
}

type ChatResult struct {
	Message  Message         `json:"message"`
	Response string          `json:"response"`
	Raw      json.RawMessage `json:"raw"`
}

type Option func(*Client)

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

// Client bounds each call with a per-operation context timeout rather than a
// client-wide one, since inference runs far longer than a health check.
type Client struct {
	baseURL   string
	transport http.RoundTripper
	logger    *slog.Logger

	mu         sync.Mutex
	httpClient *http.Client
}

func New(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: telemetry.Transport(c.transport)}
	}
	return c.httpClient
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
}

// Healthy reports whether GET /api/tags answers 200.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) Health(ctx context.Context) core.Envelope {
	ok := c.Healthy(ctx)
	if !ok {
		return core.Failure("Ollama is not reachable. Is it running?", c.baseURL)
	}
	return core.Success("Ollama is running.", map[string]bool{"ok": true})
}

func (c *Client) Models(ctx context.Context) ([]Model, error) {
	var out struct {
		Models []Model `json:"models"`
	}
	if _, err := c.doJSON(ctx, listTimeout, http.MethodGet, "/api/tags", nil, &out); err != nil {
		return nil, err
	}
	if out.Models == nil {
		out.Models = []Model{}
	}
	return out.Models, nil
}

// Generate runs one non-streaming completion.
func (c *Client) Generate(ctx context.Context, model, prompt, system string) (GenerateResult, error) {
	if strings.TrimSpace(model) == "" || strings.TrimSpace(prompt) == "" {
		return GenerateResult{}, core.Errorf(core.CodeInvalidRequest, "model and prompt are required")
	}
	body := map[string]any{"model": model, "prompt": strings.TrimSpace(prompt), "stream": false}
	if system != "" {
		body["system"] = system
	}
	var out struct {
		Response string `json:"response"`
	}
	raw, err := c.doJSON(ctx, inferenceTimeout, http.MethodPost, "/api/generate", body, &out)
	if err != nil {
		return GenerateResult{}, err
	}
	return GenerateResult{Response: out.Response, Raw: raw}, nil
}

// Chat runs one non-streaming chat turn. An empty system prompt falls back
// to DefaultSystemPrompt.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, system string) (ChatResult, error) {
	if strings.TrimSpace(model) == "" || len(messages) == 0 {
		return ChatResult{}, core.Errorf(core.CodeInvalidRequest, "model and at least one message are required")
	}
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt
	}
	body := map[string]any{"model": model, "messages": messages, "stream": false, "system": strings.TrimSpace(system)}
	var out struct {
		Message Message `json:"message"`
	}
	raw, err := c.doJSON(ctx, inferenceTimeout, http.MethodPost, "/api/chat", body, &out)
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{Message: out.Message, Response: out.Message.Content, Raw: raw}, nil
}

// Pull downloads a model. The call blocks until Ollama finishes.
func (c *Client) Pull(ctx context.Context, name string) (json.RawMessage, error) {
	if strings.TrimSpace(name) == "" {
		return nil, core.Errorf(core.CodeInvalidRequest, "model name is required")
	}
	body := map[string]any{"name": strings.TrimSpace(name), "stream": false}
	return c.doJSON(ctx, pullTimeout, http.MethodPost, "/api/pull", body, nil)
}

func (c *Client) Delete(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return core.Errorf(core.CodeInvalidRequest, "model name is required")
	}
	_, err := c.doJSON(ctx, deleteTimeout, http.MethodDelete, "/api/delete", map[string]any{"name": strings.TrimSpace(name)}, nil)
	return err
}

// doJSON performs one request and decodes the reply into out when out is
// non-nil. It returns the raw reply body.
func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method, path string, body, out any) (json.RawMessage, error) {
	op := strings.ToLower(method) + " " + path
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client().Do(req)
	if err != nil {
		telemetry.IncBackendError("ollama", core.CodeBackendUnreachable)
		c.logger.Warn("ollama request failed", "operation", op, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		telemetry.IncBackendError("ollama", core.CodeBackendStatus)
		telemetry.IncBackendStatus("ollama", resp.StatusCode)
		return nil, &core.APIError{Operation: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			telemetry.IncBackendError("ollama", core.CodeBackendPayload)
			return nil, fmt.Errorf("decode %s response: %w", op, err)
		}
	} else if !json.Valid(raw) {
		telemetry.IncBackendError("ollama", core.CodeBackendPayload)
		return nil, fmt.Errorf("decode %s response: malformed payload", op)
	}
	return json.RawMessage(raw), nil
}
