package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorKind 错误分类
type ErrorKind string

const (
	KindConfiguration   ErrorKind = "configuration"
	KindAuthentication  ErrorKind = "authentication"
	KindRateLimit       ErrorKind = "rate_limit"
	KindNetwork         ErrorKind = "network"
	KindTimeout         ErrorKind = "timeout"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindValidation      ErrorKind = "validation"
	KindUnknown         ErrorKind = "unknown"
)

// Error is the single error type returned by providers and the factory.
type Error struct {
	Kind       ErrorKind     `json:"kind"`
	Provider   string        `json:"provider,omitempty"`
	Message    string        `json:"message"`
	StatusCode int           `json:"status_code,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Cause      error         `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Provider != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Kind, e.Provider, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimit, KindTimeout:
		return true
	default:
		return false
	}
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, provider, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Cause: cause}
}

// ValidationError reports a malformed analysis request.
func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// KindOf classifies any error. Untagged deadline and network errors are mapped
// to timeout and network.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnknown
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimit, KindTimeout:
		return true
	default:
		return false
	}
}

// RetryAfterOf returns the server-advised wait, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Wrap tags err with a kind and provider unless it is already tagged.
func Wrap(err error, provider string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Provider == "" {
			cp := *e
			cp.Provider = provider
			return &cp
		}
		return err
	}
	return &Error{Kind: KindOf(err), Provider: provider, Message: "request failed", Cause: err}
}
