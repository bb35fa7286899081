// Anthropic backend implementation using the official anthropic-sdk-go.

package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for Anthropic Claude models.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	return &AnthropicProvider{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Model returns the current model.
func (p *AnthropicProvider) Model() string { return p.model }

// Generate sends one completion request. The Messages API has no JSON
// mode, so the format is enforced by instruction; the extraction layer
// downstream tolerates fenced output.
func (p *AnthropicProvider) Generate(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error) {
	anthropicMessages, systemPrompt := convertAnthropicMessages(messages)

	if format != nil && format.Type != FormatText {
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += "Respond with a single JSON object and nothing else."
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(p.temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classifyError(p.Name(), err)
	}

	content := ""
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		}
	}
	if content == "" {
		return Response{}, emptyResponseError(p.Name())
	}

	var usage *TokenUsage
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage = &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}

	return Response{Content: content, Usage: usage}, nil
}

// convertAnthropicMessages separates the system prompt, which the
// Messages API takes as a top-level parameter instead of a turn.
func convertAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	converted := make([]anthropic.MessageParam, 0, len(messages))
	systemPrompt := ""

	for _, m := range messages {
		switch m.Role {
		case "system":
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += m.Content
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return converted, systemPrompt
}
