// Package llm provides generation backend abstractions and the
// rotating backend pool the pipeline draws from.
package llm

import "encoding/json"

// ChatMessage is a single turn of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// Response is a backend completion.
type Response struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage contains token accounting for one request.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// ResponseFormatType selects how the backend must shape its output.
type ResponseFormatType string

const (
	FormatText       ResponseFormatType = "text"
	FormatJSONObject ResponseFormatType = "json_object"
	FormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat asks the backend for structured output.
type ResponseFormat struct {
	Type       ResponseFormatType
	SchemaName string
	Schema     json.RawMessage
}

// JSONObjectFormat requests free-form JSON output.
func JSONObjectFormat() *ResponseFormat {
	return &ResponseFormat{Type: FormatJSONObject}
}

// JSONSchemaFormat requests output constrained to a JSON schema.
func JSONSchemaFormat(name string, schemaJSON json.RawMessage) *ResponseFormat {
	return &ResponseFormat{Type: FormatJSONSchema, SchemaName: name, Schema: schemaJSON}
}
