package tools

import (
	"context"
	"strings"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/gateway"
)

type VoiceArgs struct {
	Operation string `json:"operation,omitempty" jsonschema:"tts, the default"`
	Text      string `json:"text" jsonschema:"text to speak"`
}

const ttsTool = "tts"

var voiceOperations = []string{"tts"}

// Voice runs the gateway tts tool. The provider is configured in OpenClaw
// (messages.tts in openclaw.json); the result usually carries a media path.
func (s *Service) Voice(ctx context.Context, args VoiceArgs) core.Envelope {
	op := strings.TrimSpace(args.Operation)
	if op == "" {
		op = "tts"
	}
	if op != "tts" {
		return unknownOperation(op, voiceOperations)
	}
	text := strings.TrimSpace(args.Text)
	if text == "" {
		return core.Failure("Text is required for TTS.", "missing_text")
	}

	env := s.invoke(ctx, "Voice", gateway.InvokeRequest{
		Tool:       ttsTool,
		Args:       map[string]any{"text": text},
		SessionKey: gateway.DefaultSessionKey,
	})
	if !env.Success {
		return env
	}
	return env.WithMessage("TTS completed. Check data for MEDIA path or audio URL.")
}

type DisconnectArgs struct{}

// removalSteps never change anything; the caller performs them.
var removalSteps = []string{
	"Stop the Gateway: quit any running OpenClaw process (Gateway, Pi agent).",
	"Remove clawd-mcp from your MCP client config and unset OPENCLAW_GATEWAY_URL and OPENCLAW_GATEWAY_TOKEN where it starts.",
	"If the dashboard API is enabled, unset OPENCLAW_DASHBOARD_LISTEN and restart it.",
	"Optional: uninstall the OpenClaw CLI with npm uninstall -g openclaw.",
	"Optional: delete ~/.openclaw to wipe Gateway config and local data.",
}

type disconnectSteps struct {
	Steps []string `json:"steps"`
}

// Disconnect returns the steps for detaching from OpenClaw. It makes no changes.
func (s *Service) Disconnect(context.Context, DisconnectArgs) core.Envelope {
	s.logger.Info("disconnect steps requested", "tool", NameDisconnect)
	return core.Success("Disconnect and removal steps (no changes made by this tool):",
		disconnectSteps{Steps: append([]string(nil), removalSteps...)})
}
