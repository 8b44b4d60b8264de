package providers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorReason
	}{
		{"nil", nil, ReasonUnknown},
		{"rate limit", errors.New("429 rate limit exceeded"), ReasonRateLimit},
		{"too many requests", errors.New("too many requests"), ReasonRateLimit},
		{"auth", errors.New("401 invalid api key"), ReasonAuth},
		{"timeout", errors.New("request timeout"), ReasonTimeout},
		{"deadline", errors.New("context deadline exceeded"), ReasonTimeout},
		{"server", errors.New("500 internal server error"), ReasonServerError},
		{"bad gateway", errors.New("502 bad gateway"), ReasonServerError},
		{"invalid model", errors.New("model not found"), ReasonModelUnavailable},
		{"billing", errors.New("monthly quota exhausted"), ReasonBilling},
		{"unknown", errors.New("something odd"), ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorReasonIsRetryable(t *testing.T) {
	retryable := []ErrorReason{ReasonRateLimit, ReasonTimeout, ReasonServerError}
	for _, reason := range retryable {
		if !reason.IsRetryable() {
			t.Errorf("%v should be retryable", reason)
		}
	}

	fatal := []ErrorReason{ReasonAuth, ReasonInvalidRequest, ReasonBilling, ReasonModelUnavailable, ReasonUnknown}
	for _, reason := range fatal {
		if reason.IsRetryable() {
			t.Errorf("%v should not be retryable", reason)
		}
	}
}

func TestProviderErrorRetryable(t *testing.T) {
	err := NewProviderError("anthropic", "claude-sonnet-4-20250514", errors.New("429 rate limit"))
	if !err.Retryable() {
		t.Error("rate limit error should be retryable")
	}

	err = NewProviderError("anthropic", "claude-sonnet-4-20250514", errors.New("401 unauthorized"))
	if err.Retryable() {
		t.Error("auth error should not be retryable")
	}
}

func TestProviderErrorWithStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorReason
	}{
		{429, ReasonRateLimit},
		{401, ReasonAuth},
		{403, ReasonAuth},
		{500, ReasonServerError},
		{503, ReasonServerError},
		{529, ReasonServerError},
		{400, ReasonInvalidRequest},
		{404, ReasonModelUnavailable},
		{402, ReasonBilling},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := NewProviderError("openai", "gpt-4o", errors.New("boom")).WithStatus(tt.status)
			if err.Reason != tt.want {
				t.Errorf("WithStatus(%d) reason = %v, want %v", tt.status, err.Reason, tt.want)
			}
			if err.Status != tt.status {
				t.Errorf("Status = %d, want %d", err.Status, tt.status)
			}
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("original failure")
	err := NewProviderError("anthropic", "claude-3-haiku-20240307", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	got, ok := GetProviderError(wrapped)
	if !ok {
		t.Fatal("GetProviderError should find wrapped ProviderError")
	}
	if got.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", got.Provider)
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := NewProviderError("openai", "gpt-4o", errors.New("raw")).
		WithStatus(429).
		WithMessage("rate limited, slow down")

	msg := err.Error()
	if msg == "" {
		t.Fatal("Error() returned empty string")
	}
	for _, want := range []string{"openai", "gpt-4o", "rate limited"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}
