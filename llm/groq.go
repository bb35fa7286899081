// Groq backend implementation using the go-openai library.
//
// Groq hosts open-weight models behind an OpenAI-compatible API, so
// this provider is the OpenAI client pointed at a different base URL.

package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqProvider implements Provider for Groq-hosted models.
type GroqProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewGroqProvider creates a new Groq provider.
func NewGroqProvider(apiKey, model string, maxTokens uint32, temperature float32) *GroqProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = groqBaseURL

	return &GroqProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *GroqProvider) Name() string { return "groq" }

// Model returns the current model.
func (p *GroqProvider) Model() string { return p.model }

// Generate sends one completion request.
func (p *GroqProvider) Generate(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error) {
	// Groq rejects json_schema for some hosted models; json_object is
	// the reliable structured mode there.
	if format != nil && format.Type == FormatJSONSchema {
		format = JSONObjectFormat()
	}
	return generateOpenAICompatible(ctx, p.client, p.Name(), p.model, p.maxTokens, p.temperature, messages, format)
}
