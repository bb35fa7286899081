package format

import (
	"strings"
	"testing"

	"github.com/ria-19/routegen/schema"
)

func runningExample() *schema.Example {
	return &schema.Example{
		UserQuery: "where does the client apply retry backoff",
		Output: schema.Output{
			Status:  schema.StatusRunning,
			Thought: "I should search the codebase to locate the retry backoff implementation before answering.",
			ToolUse: &schema.ToolUse{
				Name: schema.ToolCodebaseSearch,
				Args: &schema.CodebaseSearchArgs{Query: "retry backoff", Mode: schema.SearchSemantic},
			},
		},
	}
}

func TestRenderLayout(t *testing.T) {
	rendered, err := Render(runningExample(), Options{AddBOS: true})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.HasPrefix(rendered, bosToken) {
		t.Error("expected BOS token at the start")
	}
	for _, role := range []string{"system", "user", "assistant"} {
		if !strings.Contains(rendered, header(role)) {
			t.Errorf("missing %s header", role)
		}
	}
	if strings.Count(rendered, eotToken) != 3 {
		t.Errorf("expected 3 turn terminators, got %d", strings.Count(rendered, eotToken))
	}
	if !strings.Contains(rendered, SystemPrompt) {
		t.Error("system prompt missing from rendered template")
	}

	// No BOS unless asked for.
	plain, err := Render(runningExample(), Options{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.HasPrefix(plain, bosToken) {
		t.Error("unexpected BOS token")
	}
}

func TestRenderOmitsStrippedFields(t *testing.T) {
	rendered, err := Render(runningExample(), Options{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	// FilePattern was never set; it must not serialize as null.
	if strings.Contains(rendered, "file_pattern") || strings.Contains(rendered, "final_answer") {
		t.Errorf("absent fields leaked into the target: %s", rendered)
	}
}

func TestRenderReparseRoundTrip(t *testing.T) {
	original := runningExample()
	rendered, err := Render(original, Options{AddBOS: true})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	back, err := Reparse(rendered)
	if err != nil {
		t.Fatalf("Reparse failed: %v", err)
	}
	if back.UserQuery != original.UserQuery {
		t.Errorf("user query changed: %q", back.UserQuery)
	}
	if back.Output.Status != schema.StatusRunning {
		t.Errorf("status changed: %s", back.Output.Status)
	}
	if back.Output.ToolUse == nil {
		t.Fatal("tool_use lost in round trip")
	}
	args, ok := back.Output.ToolUse.Args.(*schema.CodebaseSearchArgs)
	if !ok {
		t.Fatalf("expected CodebaseSearchArgs, got %T", back.Output.ToolUse.Args)
	}
	if args.Query != "retry backoff" || args.Mode != schema.SearchSemantic {
		t.Errorf("arguments changed: %+v", args)
	}
}

func TestRenderCompleteRecord(t *testing.T) {
	example := &schema.Example{
		UserQuery: "what does a context timeout do",
		Output: schema.Output{
			Status:      schema.StatusComplete,
			FinalAnswer: "A context timeout cancels downstream work once the deadline passes.",
		},
	}
	rendered, err := Render(example, Options{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(rendered, `"final_answer"`) {
		t.Error("final answer missing from target")
	}
	if strings.Contains(rendered, `"tool_use"`) {
		t.Error("complete record must carry no tool_use")
	}
}

func TestRenderRefusesContractViolations(t *testing.T) {
	cases := []struct {
		name    string
		example *schema.Example
	}{
		{"empty query", &schema.Example{Output: schema.Output{Status: schema.StatusComplete, FinalAnswer: "An answer long enough."}}},
		{"running without tool_use", &schema.Example{
			UserQuery: "find the retry logic",
			Output:    schema.Output{Status: schema.StatusRunning, Thought: "some thought"},
		}},
		{"running without thought", &schema.Example{
			UserQuery: "find the retry logic",
			Output: schema.Output{
				Status:  schema.StatusRunning,
				ToolUse: &schema.ToolUse{Name: schema.ToolCodebaseSearch, Args: &schema.CodebaseSearchArgs{Query: "retry"}},
			},
		}},
		{"complete with tool_use", &schema.Example{
			UserQuery: "what is a goroutine",
			Output: schema.Output{
				Status:      schema.StatusComplete,
				FinalAnswer: "A lightweight thread.",
				ToolUse:     &schema.ToolUse{Name: schema.ToolCodebaseSearch, Args: &schema.CodebaseSearchArgs{Query: "goroutine"}},
			},
		}},
		{"unknown status", &schema.Example{
			UserQuery: "what is a goroutine",
			Output:    schema.Output{Status: "paused"},
		}},
	}
	for _, tc := range cases {
		if _, err := Render(tc.example, Options{}); err == nil {
			t.Errorf("%s: expected contract violation error", tc.name)
		}
	}
}
