package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

type testCodedError struct{ code, msg string }

func (e *testCodedError) Error() string     { return e.msg }
func (e *testCodedError) ErrorCode() string { return e.code }

type testStatusError struct{ status int }

func (e *testStatusError) Error() string   { return fmt.Sprintf("tools invoke HTTP %d: nope", e.status) }
func (e *testStatusError) HTTPStatus() int { return e.status }

func TestClassifyErrorCommonCases(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback int
		wantCode string
		wantHTTP int
	}{
		{name: "nil", err: nil, fallback: 500, wantCode: CodeInternal, wantHTTP: 500},
		{name: "invalid json body", err: errors.New("invalid json: unexpected EOF"), fallback: 500, wantCode: CodeInvalidRequest, wantHTTP: 400},
		{name: "backend status", err: &testStatusError{status: 503}, fallback: 500, wantCode: CodeBackendStatus, wantHTTP: 502},
		{name: "deadline", err: fmt.Errorf("tools invoke: %w", context.DeadlineExceeded), fallback: 500, wantCode: CodeBackendUnreachable, wantHTTP: 502},
		{name: "url error", err: &url.Error{Op: "Post", URL: "http://127.0.0.1:1", Err: errors.New("connection refused")}, fallback: 500, wantCode: CodeBackendUnreachable, wantHTTP: 502},
		{name: "malformed payload", err: errors.New("backend returned a malformed payload"), fallback: 500, wantCode: CodeBackendPayload, wantHTTP: 502},
		{name: "bad request fallback", err: errors.New("channel is required"), fallback: 400, wantCode: CodeInvalidRequest, wantHTTP: 400},
		{name: "internal fallback", err: errors.New("boom"), fallback: 500, wantCode: CodeInternal, wantHTTP: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err, tt.fallback)
			if got.Code != tt.wantCode {
				t.Fatalf("want code %q, got %q", tt.wantCode, got.Code)
			}
			if got.HTTPStatus != tt.wantHTTP {
				t.Fatalf("want status %d, got %d", tt.wantHTTP, got.HTTPStatus)
			}
		})
	}
}

func TestClassifyErrorCodedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantHTTP int
	}{
		{name: "invalid request", err: &testCodedError{code: CodeInvalidRequest, msg: "tool name is required"}, wantCode: CodeInvalidRequest, wantHTTP: 400},
		{name: "unauthorized", err: &testCodedError{code: CodeUnauthorized, msg: "missing bearer token"}, wantCode: CodeUnauthorized, wantHTTP: 401},
		{name: "unreachable", err: &testCodedError{code: CodeBackendUnreachable, msg: "dial tcp: refused"}, wantCode: CodeBackendUnreachable, wantHTTP: 502},
		{name: "wrapped", err: fmt.Errorf("routing: %w", &testCodedError{code: CodeBackendPayload, msg: "bad body"}), wantCode: CodeBackendPayload, wantHTTP: 502},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err, 500)
			if got.Code != tt.wantCode {
				t.Fatalf("want code %q, got %q", tt.wantCode, got.Code)
			}
			if got.HTTPStatus != tt.wantHTTP {
				t.Fatalf("want status %d, got %d", tt.wantHTTP, got.HTTPStatus)
			}
		})
	}
}

func TestErrorfCarriesCode(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", Errorf(CodeInvalidRequest, "%s requires %q", "update_routing", "channel"))
	got := ClassifyError(err, 500)
	if got.Code != CodeInvalidRequest || got.HTTPStatus != 400 {
		t.Fatalf("unexpected classification: %+v", got)
	}
	if got.Message != `dispatch: update_routing requires "channel"` {
		t.Fatalf("message = %q", got.Message)
	}
}

func TestAPIErrorClassifiesAsBackendStatus(t *testing.T) {
	err := fmt.Errorf("ollama: %w", &APIError{Operation: "ollama generate", StatusCode: 404, Body: "model not found"})
	if err.Error() != "ollama: ollama generate HTTP 404: model not found" {
		t.Fatalf("message = %q", err.Error())
	}
	got := ClassifyError(err, 500)
	if got.Code != CodeBackendStatus || got.HTTPStatus != 502 {
		t.Fatalf("unexpected classification: %+v", got)
	}
}
