package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CallReason classifies why a model call failed, closed over a fixed set
// of values so callers can branch on category rather than message text.
type CallReason string

const (
	ReasonRateLimit    CallReason = "rate_limit"
	ReasonAuth         CallReason = "auth"
	ReasonTimeout      CallReason = "timeout"
	ReasonServerError  CallReason = "server_error"
	ReasonInvalidInput CallReason = "invalid_request"
	ReasonUnavailable  CallReason = "model_unavailable"
	ReasonCancelled    CallReason = "cancelled"
	ReasonUnknown      CallReason = "unknown"
)

// IsRetryable reports whether a provider adapter should retry a call that
// failed for this reason.
func (r CallReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// CallError wraps a provider failure with its classified reason and the
// provider/model context that produced it.
type CallError struct {
	Reason   CallReason
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *CallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Reason)
	if e.Provider != "" {
		fmt.Fprintf(&b, " %s", e.Provider)
	}
	if e.Model != "" {
		fmt.Fprintf(&b, " model=%s", e.Model)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " %s", e.Message)
	} else if e.Cause != nil {
		fmt.Fprintf(&b, " %s", e.Cause)
	}
	return b.String()
}

func (e *CallError) Unwrap() error { return e.Cause }

// NewCallError builds a CallError classifying cause via its message text.
func NewCallError(provider, model string, cause error) *CallError {
	return &CallError{
		Reason:   ClassifyError(cause),
		Provider: provider,
		Model:    model,
		Cause:    cause,
	}
}

// WithStatus attaches an HTTP status code and reclassifies the reason
// from it when the code is more specific than string-matching found.
func (e *CallError) WithStatus(status int) *CallError {
	e.Status = status
	if reason := classifyStatusCode(status); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// WithMessage attaches a human-readable message.
func (e *CallError) WithMessage(msg string) *CallError {
	e.Message = msg
	return e
}

// ClassifyError inspects an error's message for known failure signatures.
// Providers return heterogeneous error types across SDKs; string matching
// on the lowercased message is the same tolerant approach the underlying
// SDKs themselves fall back to for non-structured errors.
func ClassifyError(err error) CallReason {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCancelled
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"):
		return ReasonRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "context deadline"):
		return ReasonTimeout
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return ReasonAuth
	case strings.Contains(msg, "model not found"), strings.Contains(msg, "does not exist"), strings.Contains(msg, "404"):
		return ReasonUnavailable
	case strings.Contains(msg, "invalid request"), strings.Contains(msg, "bad request"), strings.Contains(msg, "400"):
		return ReasonInvalidInput
	case strings.Contains(msg, "internal server error"), strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "504"):
		return ReasonServerError
	case strings.Contains(msg, "cancel"):
		return ReasonCancelled
	default:
		return ReasonUnknown
	}
}

func classifyStatusCode(status int) CallReason {
	switch {
	case status == 401 || status == 403:
		return ReasonAuth
	case status == 429:
		return ReasonRateLimit
	case status == 400:
		return ReasonInvalidInput
	case status == 404:
		return ReasonUnavailable
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

// IsCallError reports whether err is (or wraps) a *CallError.
func IsCallError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}

// IsRetryable reports whether err is a *CallError classified as retryable.
func IsRetryable(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Reason.IsRetryable()
	}
	return false
}
