// Package core holds the types shared by every clawd-mcp surface: the
// dialogic response envelope, audit findings, error classification and the
// tool allowlist.
package core

import "encoding/json"

const (
	defaultSuccessMessage = "Operation completed."
	defaultFailureMessage = "Operation failed."
)

// Envelope is the standard response wrapper for every backend-facing operation.
// Used by both the MCP tools and the dashboard HTTP API.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success builds a data-bearing envelope. A nil data value is omitted.
func Success(message string, data any) Envelope {
	if message == "" {
		message = defaultSuccessMessage
	}
	return Envelope{Success: true, Message: message, Data: data}
}

// Failure builds an error-bearing envelope. Failures never carry data.
func Failure(message, err string) Envelope {
	if message == "" {
		message = defaultFailureMessage
	}
	return Envelope{Success: false, Message: message, Error: err}
}

// WithMessage returns a copy of e with its message replaced. Used by tools that
// rephrase a backend success ("Feed retrieved.") without touching its data.
func (e Envelope) WithMessage(message string) Envelope {
	if message != "" {
		e.Message = message
	}
	return e
}

// DecodeData unmarshals the envelope payload into dst. It round-trips through
// JSON so it works for raw backend results and typed payloads alike.
func (e Envelope) DecodeData(dst any) error {
	if raw, ok := e.Data.(json.RawMessage); ok {
		return json.Unmarshal(raw, dst)
	}
	b, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
