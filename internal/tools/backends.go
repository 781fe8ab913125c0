package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/ollama"
)

type MoltbookArgs struct {
	Operation string `json:"operation" jsonschema:"one of status, feed, search, post, comment, upvote, heartbeat_dm, heartbeat_run"`
	PostID    string `json:"post_id,omitempty" jsonschema:"post id for comment and upvote"`
	Content   string `json:"content,omitempty" jsonschema:"text for post and comment"`
	Query     string `json:"query,omitempty" jsonschema:"search query"`
	Limit     int    `json:"limit,omitempty" jsonschema:"feed size, default 20"`
}

var moltbookOperations = []string{"status", "feed", "search", "post", "comment", "upvote", "heartbeat_dm", "heartbeat_run"}

func (s *Service) Moltbook(ctx context.Context, args MoltbookArgs) core.Envelope {
	mb := s.moltbook
	switch args.Operation {
	case "status":
		return mb.Status(ctx)
	case "feed":
		return mb.Feed(ctx, args.Limit)
	case "search":
		return mb.Search(ctx, args.Query)
	case "post":
		return mb.CreatePost(ctx, args.Content)
	case "comment":
		return mb.Comment(ctx, args.PostID, args.Content)
	case "upvote":
		return mb.Upvote(ctx, args.PostID)
	case "heartbeat_dm":
		return mb.DMInbox(ctx)
	case "heartbeat_run":
		return mb.HeartbeatRun(ctx)
	}
	return unknownOperation(args.Operation, moltbookOperations)
}

type OllamaArgs struct {
	Operation string           `json:"operation" jsonschema:"one of health, models, generate, chat"`
	Model     string           `json:"model,omitempty" jsonschema:"model name such as llama3.2"`
	Prompt    string           `json:"prompt,omitempty" jsonschema:"prompt for generate"`
	System    string           `json:"system,omitempty" jsonschema:"system prompt"`
	Messages  []ollama.Message `json:"messages,omitempty" jsonschema:"chat history for chat"`
}

var ollamaOperations = []string{"health", "models", "generate", "chat"}

func (s *Service) Ollama(ctx context.Context, args OllamaArgs) core.Envelope {
	ol := s.ollama
	switch args.Operation {
	case "health":
		return ol.Health(ctx)
	case "models":
		models, err := ol.Models(ctx)
		if err != nil {
			return ollamaFailure("models", err)
		}
		return core.Success(fmt.Sprintf("Found %d models.", len(models)), map[string]any{"models": models})
	case "generate":
		if strings.TrimSpace(args.Model) == "" || strings.TrimSpace(args.Prompt) == "" {
			return core.Failure("generate requires 'model' and 'prompt'.", "")
		}
		res, err := ol.Generate(ctx, args.Model, args.Prompt, args.System)
		if err != nil {
			return ollamaFailure("generate", err)
		}
		return core.Success("Generation complete.", res)
	case "chat":
		if strings.TrimSpace(args.Model) == "" || len(args.Messages) == 0 {
			return core.Failure("chat requires 'model' and 'messages'.", "")
		}
		res, err := ol.Chat(ctx, args.Model, args.Messages, args.System)
		if err != nil {
			return ollamaFailure("chat", err)
		}
		return core.Success("Chat reply received.", res)
	}
	return unknownOperation(args.Operation, ollamaOperations)
}

func ollamaFailure(op string, err error) core.Envelope {
	info := core.ClassifyError(err, 502)
	if info.Code == core.CodeBackendUnreachable {
		return core.Failure("Ollama is not reachable. Is it running?", err.Error())
	}
	return core.Failure(fmt.Sprintf("Ollama %s failed", op), err.Error())
}
