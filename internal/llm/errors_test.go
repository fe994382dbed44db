package llm

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want CallReason
	}{
		{"rate limit", errors.New("429 Too Many Requests"), ReasonRateLimit},
		{"auth", errors.New("401 unauthorized: invalid api key"), ReasonAuth},
		{"timeout", errors.New("request timeout after 30s"), ReasonTimeout},
		{"deadline", context.DeadlineExceeded, ReasonTimeout},
		{"cancelled", context.Canceled, ReasonCancelled},
		{"model unavailable", errors.New("model not found: gpt-9"), ReasonUnavailable},
		{"server error", errors.New("502 bad gateway"), ReasonServerError},
		{"invalid", errors.New("400 bad request: missing field"), ReasonInvalidInput},
		{"unknown", errors.New("something odd happened"), ReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyError(tc.err); got != tc.want {
				t.Fatalf("ClassifyError(%q) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestCallErrorUnwrap(t *testing.T) {
	cause := errors.New("503 service unavailable")
	ce := NewCallError("anthropic", "claude-x", cause)
	if ce.Reason != ReasonServerError {
		t.Fatalf("Reason = %q, want server_error", ce.Reason)
	}
	if !errors.Is(ce, cause) {
		t.Fatal("errors.Is should unwrap to cause")
	}
	if !IsRetryable(ce) {
		t.Fatal("server_error should be retryable")
	}
}

func TestWithStatusReclassifies(t *testing.T) {
	ce := NewCallError("openai", "gpt-4o", errors.New("weird message")).WithStatus(429)
	if ce.Reason != ReasonRateLimit {
		t.Fatalf("Reason after WithStatus(429) = %q, want rate_limit", ce.Reason)
	}
}

func TestIsCallError(t *testing.T) {
	ce := NewCallError("google", "gemini", errors.New("boom"))
	if !IsCallError(ce) {
		t.Fatal("IsCallError should be true for a *CallError")
	}
	if IsCallError(errors.New("plain")) {
		t.Fatal("IsCallError should be false for a plain error")
	}
}
