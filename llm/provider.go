// Provider interface - the abstract interface for generation backends.
// Each implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error classification

package llm

import "context"

// Provider is one interchangeable upstream text-generation source.
// Implementations return *BackendError for every failure so callers
// can branch on the failure kind without knowing the provider.
type Provider interface {
	// Name returns the provider name (for logging and pool state).
	Name() string

	// Model returns the model this provider is bound to.
	Model() string

	// Generate sends one completion request. The format, when non-nil,
	// constrains the response to JSON.
	Generate(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error)
}
