package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clawd-mcp/clawd-mcp/internal/core"
	"github.com/clawd-mcp/clawd-mcp/internal/doctor"
	"github.com/clawd-mcp/clawd-mcp/internal/gateway"
	"github.com/clawd-mcp/clawd-mcp/internal/routing"
	"github.com/clawd-mcp/clawd-mcp/internal/security"
)

type GatewayArgs struct {
	Operation string `json:"operation" jsonschema:"one of status, health, doctor"`
}

var gatewayOperations = []string{"status", "health", "doctor"}

// Gateway reports gateway reachability or runs the CLI doctor.
func (s *Service) Gateway(ctx context.Context, args GatewayArgs) core.Envelope {
	op := strings.TrimSpace(args.Operation)
	if op == "" {
		op = "status"
	}
	switch op {
	case "status", "health":
		gw := s.NewGateway()
		defer gw.Close()
		req := gateway.InvokeRequest{Tool: security.ReachabilityTool, Args: map[string]any{}}
		if op == "status" {
			req.Action = "json"
		}
		env, err := gw.Invoke(ctx, req)
		if err != nil {
			return core.Failure("Gateway unreachable or Tools Invoke failed.", err.Error())
		}
		if op == "health" {
			if env.Success {
				return core.Success("Gateway healthy.", nil)
			}
			return core.Failure(env.Message, env.Error)
		}
		if !env.Success {
			return core.Failure("Gateway unreachable or Tools Invoke failed.", env.Error)
		}
		return env.WithMessage("Gateway reachable. Tools Invoke API responded successfully.")
	case "doctor":
		return s.runDoctor(ctx)
	}
	return unknownOperation(op, gatewayOperations)
}

type doctorOutput struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

func (s *Service) runDoctor(ctx context.Context) core.Envelope {
	report, err := s.doctor.Doctor(ctx)
	switch {
	case err == nil:
		return core.Success("Doctor completed successfully.", doctorOutput{Stdout: report.Stdout, Stderr: report.Stderr})
	case errors.Is(err, doctor.ErrNotFound):
		return core.Failure(fmt.Sprintf("openclaw CLI not found. Ensure '%s' is on PATH.", s.doctor.Path()), err.Error())
	case report.ExitCode == -1:
		return core.Failure("Doctor timed out", err.Error())
	}
	detail := report.Output()
	if strings.TrimSpace(detail) == "" {
		detail = err.Error()
	}
	return core.Failure(fmt.Sprintf("Doctor exited with code %d", report.ExitCode), detail)
}

type SessionsArgs struct {
	Operation  string         `json:"operation" jsonschema:"one of list, history, send"`
	SessionKey string         `json:"session_key,omitempty" jsonschema:"session to act on, default main"`
	Args       map[string]any `json:"args,omitempty" jsonschema:"arguments passed through to the backend tool"`
}

var sessionTools = map[string]string{
	"list":    "sessions_list",
	"history": "sessions_history",
	"send":    "sessions_send",
}

var sessionOperations = []string{"list", "history", "send"}

// Sessions maps session operations onto the sessions_* backend tools.
func (s *Service) Sessions(ctx context.Context, args SessionsArgs) core.Envelope {
	tool, ok := sessionTools[args.Operation]
	if !ok {
		return unknownOperation(args.Operation, sessionOperations)
	}
	return s.invoke(ctx, "Sessions", gateway.InvokeRequest{
		Tool:       tool,
		Action:     "json",
		Args:       cloneArgs(args.Args),
		SessionKey: sessionKey(args.SessionKey),
	})
}

type ChannelsArgs struct {
	Operation  string         `json:"operation" jsonschema:"one of list_channels, get_channel_config, send_message, get_recent_messages"`
	Channel    string         `json:"channel,omitempty" jsonschema:"channel name such as whatsapp or telegram"`
	To         string         `json:"to,omitempty" jsonschema:"optional peer for send_message"`
	Message    string         `json:"message,omitempty" jsonschema:"message text for send_message"`
	Limit      *int           `json:"limit,omitempty" jsonschema:"number of recent messages, 1 to 100, default 20"`
	SessionKey string         `json:"session_key,omitempty" jsonschema:"session to act on, default main"`
	Args       map[string]any `json:"args,omitempty" jsonschema:"extra arguments passed through to the backend tool"`
}

const (
	channelsTool        = "channels"
	defaultMessageLimit = 20
	maxMessageLimit     = 100
)

// ChannelOperations lists the channels tool actions in display order.
var ChannelOperations = []string{"list_channels", "get_channel_config", "send_message", "get_recent_messages"}

func (s *Service) Channels(ctx context.Context, args ChannelsArgs) core.Envelope {
	op := args.Operation
	channel := strings.TrimSpace(args.Channel)
	message := strings.TrimSpace(args.Message)

	switch op {
	case "list_channels":
	case "get_channel_config":
		if channel == "" {
			return core.Failure("get_channel_config requires 'channel'.", "")
		}
	case "send_message":
		if message == "" {
			return core.Failure("send_message requires 'message'.", "")
		}
	case "get_recent_messages":
		if channel == "" {
			return core.Failure("get_recent_messages requires 'channel'.", "")
		}
	default:
		return unknownOperation(op, ChannelOperations)
	}

	invokeArgs := cloneArgs(args.Args)
	if channel != "" {
		invokeArgs["channel"] = channel
	}
	if to := strings.TrimSpace(args.To); to != "" {
		invokeArgs["to"] = to
	}
	if message != "" {
		invokeArgs["message"] = message
	}
	if op == "get_recent_messages" {
		invokeArgs["limit"] = clampLimit(args.Limit)
	}

	return s.invoke(ctx, "Channels", gateway.InvokeRequest{
		Tool:       channelsTool,
		Action:     op,
		Args:       invokeArgs,
		SessionKey: sessionKey(args.SessionKey),
	})
}

// clampLimit applies the default only when limit is absent; an explicit 0
// clamps to 1.
func clampLimit(limit *int) int {
	if limit == nil {
		return defaultMessageLimit
	}
	n := *limit
	switch {
	case n < 1:
		return 1
	case n > maxMessageLimit:
		return maxMessageLimit
	}
	return n
}

type RoutingArgs struct {
	Operation  string         `json:"operation" jsonschema:"one of get_routing_rules, update_routing, test_routing, get_session_by_channel"`
	Channel    string         `json:"channel,omitempty" jsonschema:"channel name"`
	Agent      string         `json:"agent,omitempty" jsonschema:"agent id for update_routing"`
	Peer       string         `json:"peer,omitempty" jsonschema:"peer for test_routing or get_session_by_channel"`
	Body       *string        `json:"body,omitempty" jsonschema:"simulated inbound message for test_routing"`
	SessionKey string         `json:"session_key,omitempty" jsonschema:"session to act on, default main"`
	Args       map[string]any `json:"args,omitempty" jsonschema:"extra arguments passed through to the backend tool"`
}

// Routing forwards to the backend routing tool. get_routing_rules falls back
// to the local openclaw.json when the backend cannot answer.
func (s *Service) Routing(ctx context.Context, args RoutingArgs) core.Envelope {
	op := args.Operation
	channel := strings.TrimSpace(args.Channel)
	agent := strings.TrimSpace(args.Agent)

	switch op {
	case routing.OpGetRoutingRules, routing.OpTestRouting:
	case routing.OpUpdateRouting:
		if channel == "" || agent == "" {
			return core.Failure("update_routing requires 'channel' and 'agent'.", "")
		}
		s.logger.Info("update_routing is a write operation", "tool", NameRouting, "channel", channel, "agent", agent)
	case routing.OpGetSessionByChannel:
		if channel == "" {
			return core.Failure("get_session_by_channel requires 'channel'.", "")
		}
	default:
		return unknownOperation(op, routing.Operations)
	}

	invokeArgs := cloneArgs(args.Args)
	if channel != "" {
		invokeArgs["channel"] = channel
	}
	if agent != "" {
		invokeArgs["agent"] = agent
	}
	if peer := strings.TrimSpace(args.Peer); peer != "" {
		invokeArgs["peer"] = peer
	}
	if args.Body != nil {
		invokeArgs["body"] = *args.Body
	}

	gw := s.NewGateway()
	defer gw.Close()

	if op == routing.OpGetRoutingRules {
		resolver := routing.NewResolver(gw, s.cfg.WorkspacePath,
			routing.WithHomeDir(s.homeDir), routing.WithLogger(s.logger))
		return resolver.GetRoutingRules(ctx, sessionKey(args.SessionKey), invokeArgs)
	}

	env, err := gw.Invoke(ctx, gateway.InvokeRequest{
		Tool:       routing.Tool,
		Action:     op,
		Args:       invokeArgs,
		SessionKey: sessionKey(args.SessionKey),
	})
	if err != nil {
		s.logger.Error("routing invoke failed", "tool", NameRouting, "operation", op, "err", err)
		return core.Failure(fmt.Sprintf("Routing operation failed: %v", err), err.Error())
	}
	return env
}

type AgentArgs struct {
	Operation  string `json:"operation" jsonschema:"one of wake, run_agent, send_message"`
	Message    string `json:"message,omitempty" jsonschema:"text for the agent or wake event"`
	SessionKey string `json:"session_key,omitempty" jsonschema:"session to act on, default main"`
	Channel    string `json:"channel,omitempty" jsonschema:"delivery channel: last, whatsapp, telegram, discord or slack"`
	To         string `json:"to,omitempty" jsonschema:"delivery peer"`
	Deliver    bool   `json:"deliver,omitempty" jsonschema:"deliver the agent reply to the channel"`
}

const (
	defaultWakeText = "Wake triggered via clawd-mcp"
	defaultRunText  = "Isolated run triggered via clawd-mcp"
)

var agentOperations = []string{"wake", "run_agent", "send_message"}

// Agent triggers the gateway webhooks.
func (s *Service) Agent(ctx context.Context, args AgentArgs) core.Envelope {
	message := strings.TrimSpace(args.Message)

	var hook gateway.AgentHook
	switch args.Operation {
	case "wake":
	case "run_agent":
		if message == "" {
			message = defaultRunText
		}
		hook = gateway.AgentHook{Message: message, SessionKey: sessionKey(args.SessionKey)}
	case "send_message":
		if message == "" {
			return core.Failure("send_message requires 'message'.", "")
		}
		hook = gateway.AgentHook{
			Message:    message,
			SessionKey: sessionKey(args.SessionKey),
			Deliver:    args.Deliver,
			Channel:    strings.TrimSpace(args.Channel),
			To:         strings.TrimSpace(args.To),
		}
	default:
		return unknownOperation(args.Operation, agentOperations)
	}

	gw := s.NewGateway()
	defer gw.Close()

	var (
		env core.Envelope
		err error
	)
	if args.Operation == "wake" {
		if message == "" {
			message = defaultWakeText
		}
		env, err = gw.Wake(ctx, message, "now")
	} else {
		env, err = gw.RunAgent(ctx, hook)
	}
	if err != nil {
		s.logger.Error("agent hook failed", "tool", NameAgent, "operation", args.Operation, "err", err)
		return core.Failure(fmt.Sprintf("Agent operation failed: %v", err), err.Error())
	}
	return env
}

// invoke runs one Tools Invoke call on a fresh client.
func (s *Service) invoke(ctx context.Context, label string, req gateway.InvokeRequest) core.Envelope {
	gw := s.NewGateway()
	defer gw.Close()

	env, err := gw.Invoke(ctx, req)
	if err != nil {
		s.logger.Error("invoke failed", "tool", req.Tool, "operation", req.Action, "err", err)
		return core.Failure(fmt.Sprintf("%s operation failed: %v", label, err), err.Error())
	}
	return env
}
