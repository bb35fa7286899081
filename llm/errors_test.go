package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyErrorContextDeadline(t *testing.T) {
	be := classifyError("groq", fmt.Errorf("request: %w", context.DeadlineExceeded))
	if be.Kind != ErrTimeout {
		t.Errorf("expected timeout, got %s", be.Kind)
	}
	if be.Backend != "groq" {
		t.Errorf("expected backend groq, got %s", be.Backend)
	}
}

func TestClassifyErrorMessageSniffing(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorKind
	}{
		{"HTTP 429 Too Many Requests", ErrRateLimited},
		{"rate limit exceeded, retry after 2s", ErrRateLimited},
		{"RESOURCE_EXHAUSTED: quota", ErrRateLimited},
		{"request timeout after 30s", ErrTimeout},
		{"connection refused", ErrUnavailable},
		{"invalid api key", ErrUnavailable},
	}
	for _, tc := range cases {
		be := classifyError("test", errors.New(tc.msg))
		if be.Kind != tc.want {
			t.Errorf("classifyError(%q) = %s, want %s", tc.msg, be.Kind, tc.want)
		}
	}
}

func TestKindFromStatus(t *testing.T) {
	if got := kindFromStatus(429); got != ErrRateLimited {
		t.Errorf("429 -> %s, want rate_limited", got)
	}
	if got := kindFromStatus(401); got != ErrUnavailable {
		t.Errorf("401 -> %s, want unavailable", got)
	}
	if got := kindFromStatus(503); got != ErrUnavailable {
		t.Errorf("503 -> %s, want unavailable", got)
	}
}

func TestIsRateLimitUnwrapsWrappedErrors(t *testing.T) {
	be := &BackendError{Backend: "groq", Kind: ErrRateLimited, Err: errors.New("429")}
	wrapped := fmt.Errorf("attempt 2: %w", be)
	if !IsRateLimit(wrapped) {
		t.Error("expected IsRateLimit to see through wrapping")
	}
	if IsRateLimit(errors.New("429")) {
		t.Error("bare errors are not rate-limit signals")
	}
}

func TestBackendErrorMessageIncludesKind(t *testing.T) {
	be := emptyResponseError("gemini")
	if be.Kind != ErrMalformed {
		t.Errorf("expected malformed, got %s", be.Kind)
	}
	msg := be.Error()
	if msg == "" || !errors.As(error(be), new(*BackendError)) {
		t.Errorf("unexpected error shape: %q", msg)
	}
}
