// Package moltbook is a small client for the Moltbook REST API, the social
// network OpenClaw agents post to.
package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/telemetry"
)

const (
	DefaultBaseURL = "https://www.moltbook.com/api/v1"
	HeartbeatURL   = "https://www.moltbook.com/heartbeat.md"

	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 8 << 20
)

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

type Client struct {
	baseURL   string
	apiKey    string
	transport http.RoundTripper
	logger    *slog.Logger

	mu         sync.Mutex
	httpClient *http.Client
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) HasKey() bool { return c.apiKey != "" }

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout, Transport: telemetry.Transport(c.transport)}
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

// Status checks the key is configured and the feed endpoint answers.
func (c *Client) Status(ctx context.Context) core.Envelope {
	if !c.HasKey() {
		return core.Failure("MOLTBOOK_API_KEY not configured. Set OPENCLAW_MOLTBOOK_API_KEY or MOLTBOOK_API_KEY.", "")
	}
	env := c.Get(ctx, "/feed", url.Values{"limit": {"1"}})
	if !env.Success {
		return env
	}
	return core.Success("Moltbook API reachable. Key configured.", map[string]string{"api": c.baseURL})
}

func (c *Client) Feed(ctx context.Context, limit int) core.Envelope {
	if limit <= 0 {
		limit = 20
	}
	return successMessage(c.Get(ctx, "/feed", url.Values{"limit": {strconv.Itoa(limit)}}), "Feed retrieved.")
}

func (c *Client) Search(ctx context.Context, query string) core.Envelope {
	if strings.TrimSpace(query) == "" {
		return core.Failure("query required for search", "")
	}
	return successMessage(c.Get(ctx, "/search", url.Values{"q": {query}}), "Search results for: "+query)
}

func (c *Client) CreatePost(ctx context.Context, content string) core.Envelope {
	if strings.TrimSpace(content) == "" {
		return core.Failure("content required for post", "")
	}
	return successMessage(c.Post(ctx, "/posts", map[string]any{"content": content}), "Post created.")
}

func (c *Client) Comment(ctx context.Context, postID, content string) core.Envelope {
	if strings.TrimSpace(postID) == "" || strings.TrimSpace(content) == "" {
		return core.Failure("post_id and content required for comment", "")
	}
	path := "/posts/" + url.PathEscape(postID) + "/comments"
	return successMessage(c.Post(ctx, path, map[string]any{"content": content}), "Comment added.")
}

func (c *Client) Upvote(ctx context.Context, postID string) core.Envelope {
	if strings.TrimSpace(postID) == "" {
		return core.Failure("post_id required for upvote", "")
	}
	return successMessage(c.Post(ctx, "/posts/"+url.PathEscape(postID)+"/upvote", nil), "Upvoted.")
}

func (c *Client) DMInbox(ctx context.Context) core.Envelope {
	return successMessage(c.Get(ctx, "/agents/dm/inbox", nil), "DM inbox checked.")
}

type Heartbeat struct {
	DMStatus    string `json:"dm_status"`
	FeedStatus  string `json:"feed_status"`
	HeartbeatMD string `json:"heartbeat_md"`
}

// HeartbeatRun checks DMs and the feed. It always succeeds; the individual
// results are reported as ok or error.
func (c *Client) HeartbeatRun(ctx context.Context) core.Envelope {
	dm := c.Get(ctx, "/agents/dm/inbox", nil)
	feed := c.Get(ctx, "/feed", url.Values{"limit": {"10"}})
	return core.Success("Heartbeat run complete. Check DMs and feed.", Heartbeat{
		DMStatus:    okOrError(dm.Success),
		FeedStatus:  okOrError(feed.Success),
		HeartbeatMD: HeartbeatURL,
	})
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) core.Envelope {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post sends body as JSON; a nil body is sent as {}.
func (c *Client) Post(ctx context.Context, path string, body map[string]any) core.Envelope {
	if body == nil {
		body = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) core.Envelope {
	op := strings.ToLower(method) + " " + path
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return core.Failure("Moltbook request failed", fmt.Sprintf("marshal body: %v", err))
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return core.Failure("Moltbook request failed", err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		telemetry.IncBackendError("moltbook", core.CodeBackendUnreachable)
		c.logger.Error("moltbook request error", "operation", op, "err", err)
		return core.Failure("Moltbook request failed", err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		telemetry.IncBackendError("moltbook", core.CodeBackendUnreachable)
		return core.Failure("Moltbook request failed", fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		telemetry.IncBackendError("moltbook", core.CodeBackendStatus)
		telemetry.IncBackendStatus("moltbook", resp.StatusCode)
		apiErr := &core.APIError{Operation: op, StatusCode: resp.StatusCode, Body: string(raw)}
		c.logger.Error("moltbook http error", "operation", op, "status", resp.StatusCode)
		return core.Failure(fmt.Sprintf("Moltbook returned %d", resp.StatusCode), apiErr.Error())
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return core.Success("OK", map[string]any{})
	}
	if !json.Valid(trimmed) {
		telemetry.IncBackendError("moltbook", core.CodeBackendPayload)
		return core.Failure("Moltbook returned a malformed payload", op+" response is not JSON")
	}
	return core.Success("OK", json.RawMessage(trimmed))
}

func successMessage(env core.Envelope, msg string) core.Envelope {
	if env.Success {
		return env.WithMessage(msg)
	}
	return env
}

func okOrError(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
