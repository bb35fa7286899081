// Google Gemini backend implementation using the official
// google.golang.org/genai SDK.

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error // client initialization error, reported on first use
}

// NewGeminiProvider creates a new Gemini provider. A client
// initialization failure is stored and surfaced on first Generate so
// the constructor signature matches the other providers.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	p := &GeminiProvider{
		client:      client,
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: temperature,
	}
	if err != nil {
		p.client = nil
		p.initErr = fmt.Errorf("initialize Gemini client: %w", err)
	}
	return p
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string { return "gemini" }

// Model returns the current model.
func (p *GeminiProvider) Model() string { return p.model }

// Generate sends one completion request.
func (p *GeminiProvider) Generate(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error) {
	if p.initErr != nil {
		return Response{}, &BackendError{Backend: p.Name(), Kind: ErrUnavailable, Err: p.initErr}
	}

	contents, systemInstruction := convertGeminiMessages(messages)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	if format != nil && format.Type != FormatText {
		config.ResponseMIMEType = "application/json"
	}

	response, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return Response{}, classifyError(p.Name(), err)
	}

	content := response.Text()
	if content == "" {
		return Response{}, emptyResponseError(p.Name())
	}

	var usage *TokenUsage
	if response.UsageMetadata != nil {
		usage = &TokenUsage{
			PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
			CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
		}
	}

	return Response{Content: content, Usage: usage}, nil
}

// convertGeminiMessages separates the system instruction, which the
// Gemini API takes via config instead of the content list.
func convertGeminiMessages(messages []ChatMessage) ([]*genai.Content, string) {
	contents := make([]*genai.Content, 0, len(messages))
	systemInstruction := ""

	for _, m := range messages {
		switch m.Role {
		case "system":
			if systemInstruction != "" {
				systemInstruction += "\n\n"
			}
			systemInstruction += m.Content
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, systemInstruction
}
