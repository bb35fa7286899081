// Package format renders accepted records into the Llama-3 Instruct
// chat template consumed by the trainer.
package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ria-19/routegen/schema"
)

// SystemPrompt is the fixed system turn every training text carries.
// The router model is trained against exactly this prompt.
const SystemPrompt = `You are the Semantic Brain of an autonomous AI engineer.
Your role is to route user queries to the correct tool or answer directly.

OUTPUT RULES:
1. If the user asks a question you can answer with general knowledge, return status="complete".
2. If the user asks for a specific action (search, file edit, debug), return status="running" and choose the tool.
3. If the request is ambiguous or impossible, return status="running" and use the 'ask_human' tool.
4. Output STRICT JSON only. No markdown, no yapping.`

const (
	bosToken = "<|begin_of_text|>"
	eotToken = "<|eot_id|>"
)

func header(role string) string {
	return "<|start_header_id|>" + role + "<|end_header_id|>\n\n"
}

// Options controls rendering.
type Options struct {
	// AddBOS prepends <|begin_of_text|>. Usually the tokenizer adds it.
	AddBOS bool
}

// Render converts an accepted record into the chat-template string.
// A record that reached this stage already satisfies every schema and
// domain invariant; any violation caught here is a validator defect,
// reported as an error rather than silently rendered.
func Render(example *schema.Example, opts Options) (string, error) {
	if err := contractCheck(example); err != nil {
		return "", fmt.Errorf("formatter contract violation: %w", err)
	}

	// Compact JSON keeps the assistant turn token-cheap; omitempty
	// tags keep stripped fields out of the serialized target.
	target, err := json.Marshal(example.Output)
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}

	var b strings.Builder
	if opts.AddBOS {
		b.WriteString(bosToken)
	}
	b.WriteString(header("system"))
	b.WriteString(SystemPrompt)
	b.WriteString(eotToken)
	b.WriteString(header("user"))
	b.WriteString(example.UserQuery)
	b.WriteString(eotToken)
	b.WriteString(header("assistant"))
	b.Write(target)
	b.WriteString(eotToken)
	return b.String(), nil
}

func contractCheck(example *schema.Example) error {
	if strings.TrimSpace(example.UserQuery) == "" {
		return fmt.Errorf("empty user_query")
	}
	switch example.Output.Status {
	case schema.StatusRunning:
		if example.Output.ToolUse == nil || example.Output.ToolUse.Args == nil {
			return fmt.Errorf("running record without tool_use")
		}
		if example.Output.Thought == "" {
			return fmt.Errorf("running record without thought")
		}
	case schema.StatusComplete:
		if example.Output.FinalAnswer == "" {
			return fmt.Errorf("complete record without final_answer")
		}
		if example.Output.ToolUse != nil {
			return fmt.Errorf("complete record with tool_use")
		}
	default:
		return fmt.Errorf("unknown status %q", example.Output.Status)
	}
	return nil
}

// Reparse recovers the record from a rendered template. Used by the
// audit command and by round-trip tests.
func Reparse(rendered string) (*schema.Example, error) {
	userTurn, err := section(rendered, "user")
	if err != nil {
		return nil, err
	}
	assistantTurn, err := section(rendered, "assistant")
	if err != nil {
		return nil, err
	}
	var output schema.Output
	if err := json.Unmarshal([]byte(assistantTurn), &output); err != nil {
		return nil, fmt.Errorf("assistant turn is not valid JSON: %w", err)
	}
	return &schema.Example{UserQuery: userTurn, Output: output}, nil
}

func section(rendered, role string) (string, error) {
	marker := header(role)
	start := strings.Index(rendered, marker)
	if start == -1 {
		return "", fmt.Errorf("no %s turn in rendered template", role)
	}
	rest := rendered[start+len(marker):]
	end := strings.Index(rest, eotToken)
	if end == -1 {
		return "", fmt.Errorf("%s turn not terminated", role)
	}
	return rest[:end], nil
}
