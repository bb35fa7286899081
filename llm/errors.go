package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind classifies a backend failure for retry/failover decisions.
type ErrorKind string

const (
	// ErrRateLimited means the backend throttled us; it should cool down.
	ErrRateLimited ErrorKind = "rate_limited"
	// ErrTimeout covers deadline and cancellation at the request boundary.
	ErrTimeout ErrorKind = "timeout"
	// ErrMalformed means the backend answered but the payload is unusable.
	ErrMalformed ErrorKind = "malformed"
	// ErrUnavailable covers auth failures and server-side errors.
	ErrUnavailable ErrorKind = "unavailable"
)

// BackendError is the typed failure every provider returns. The
// orchestrator decides retry vs failover from Kind, never from
// provider-specific error strings.
type BackendError struct {
	Backend string
	Kind    ErrorKind
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// AsBackendError unwraps err to a *BackendError if there is one.
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	ok := errors.As(err, &be)
	return be, ok
}

// IsRateLimit reports whether err is a backend rate-limit signal.
func IsRateLimit(err error) bool {
	be, ok := AsBackendError(err)
	return ok && be.Kind == ErrRateLimited
}

// classifyError maps a raw provider error onto the failure taxonomy.
// SDK-typed errors are preferred; the string sniffing at the end
// catches providers whose SDKs wrap status codes opaquely.
func classifyError(backend string, err error) *BackendError {
	kind := ErrUnavailable

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = ErrTimeout
	default:
		var openaiErr *openai.APIError
		var anthropicErr *anthropic.Error
		if errors.As(err, &openaiErr) {
			kind = kindFromStatus(openaiErr.HTTPStatusCode)
		} else if errors.As(err, &anthropicErr) {
			kind = kindFromStatus(anthropicErr.StatusCode)
		} else {
			kind = kindFromMessage(err.Error())
		}
	}

	return &BackendError{Backend: backend, Kind: kind, Err: err}
}

func kindFromStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return ErrRateLimited
	case status == 408:
		return ErrTimeout
	case status >= 500, status == 401, status == 403:
		return ErrUnavailable
	default:
		return ErrUnavailable
	}
}

func kindFromMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "429"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "resource_exhausted"),
		strings.Contains(lower, "resourceexhausted"):
		return ErrRateLimited
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		return ErrTimeout
	default:
		return ErrUnavailable
	}
}

// emptyResponseError flags a well-formed reply with no usable content.
func emptyResponseError(backend string) *BackendError {
	return &BackendError{Backend: backend, Kind: ErrMalformed, Err: errors.New("empty response content")}
}
