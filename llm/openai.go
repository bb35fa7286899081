// OpenAI backend implementation using the go-openai library.

package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider for OpenAI chat models.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string { return "openai" }

// Model returns the current model.
func (p *OpenAIProvider) Model() string { return p.model }

// Generate sends one completion request.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error) {
	return generateOpenAICompatible(ctx, p.client, p.Name(), p.model, p.maxTokens, p.temperature, messages, format)
}

// generateOpenAICompatible is shared by every backend speaking the
// OpenAI chat-completions wire format.
func generateOpenAICompatible(ctx context.Context, client *openai.Client, name, model string, maxTokens int, temperature float32, messages []ChatMessage, format *ResponseFormat) (Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if format != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatType(format.Type),
		}
		if format.Type == FormatJSONSchema {
			req.ResponseFormat.JSONSchema = &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   format.SchemaName,
				Schema: rawSchema(format.Schema),
				Strict: true,
			}
		}
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, classifyError(name, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Response{}, emptyResponseError(name)
	}

	return Response{
		Content: resp.Choices[0].Message.Content,
		Usage: &TokenUsage{
			PromptTokens:     uint32(resp.Usage.PromptTokens),
			CompletionTokens: uint32(resp.Usage.CompletionTokens),
			TotalTokens:      uint32(resp.Usage.TotalTokens),
		},
	}, nil
}

func convertMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return converted
}

// rawSchema adapts a raw JSON schema to go-openai's marshaler type.
type rawSchema []byte

func (s rawSchema) MarshalJSON() ([]byte, error) { return s, nil }
