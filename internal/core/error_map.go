package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// CodedError is implemented by domain errors that carry a machine-readable code.
type CodedError interface {
	error
	ErrorCode() string
}

// StatusError is implemented by backend errors that carry an upstream HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

const (
	CodeBackendUnreachable = "backend_unreachable"
	CodeBackendStatus      = "backend_status"
	CodeBackendPayload     = "backend_payload"
	CodeInvalidRequest     = "invalid_request"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal_error"
)

// APIError is a non-2xx answer from a backend HTTP API.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

type ErrorInfo struct {
	Code       string
	Message    string
	HTTPStatus int
}

// ClassifyError maps an error to a stable code and the HTTP status the
// dashboard API answers with.
func ClassifyError(err error, fallbackStatus int) ErrorInfo {
	if err == nil {
		return ErrorInfo{Code: CodeInternal, Message: "internal server error", HTTPStatus: fallbackStatus}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	var coded CodedError
	if errors.As(err, &coded) {
		switch code := coded.ErrorCode(); code {
		case CodeInvalidRequest:
			return ErrorInfo{Code: code, Message: msg, HTTPStatus: 400}
		case CodeUnauthorized:
			return ErrorInfo{Code: code, Message: msg, HTTPStatus: 401}
		case CodeBackendUnreachable, CodeBackendStatus, CodeBackendPayload:
			return ErrorInfo{Code: code, Message: msg, HTTPStatus: 502}
		}
	}

	var status StatusError
	if errors.As(err, &status) {
		return ErrorInfo{Code: CodeBackendStatus, Message: msg, HTTPStatus: 502}
	}

	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr), errors.As(err, &urlErr):
		return ErrorInfo{Code: CodeBackendUnreachable, Message: msg, HTTPStatus: 502}
	case strings.Contains(lower, "invalid json"), strings.Contains(lower, "request body must contain a single json object"):
		return ErrorInfo{Code: CodeInvalidRequest, Message: msg, HTTPStatus: 400}
	case strings.Contains(lower, "malformed payload"), strings.Contains(lower, "decode"):
		return ErrorInfo{Code: CodeBackendPayload, Message: msg, HTTPStatus: 502}
	default:
		code := CodeInternal
		if fallbackStatus >= 400 && fallbackStatus < 500 {
			code = CodeInvalidRequest
		}
		return ErrorInfo{Code: code, Message: msg, HTTPStatus: fallbackStatus}
	}
}

type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string     { return e.msg }
func (e *codedError) ErrorCode() string { return e.code }

// Errorf formats an error that ClassifyError maps to code.
func Errorf(code, format string, args ...any) error {
	return &codedError{code: code, msg: fmt.Sprintf(format, args...)}
}
