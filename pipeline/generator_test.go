package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/ria-19/routegen/config"
	"github.com/ria-19/routegen/llm"
)

// capturingBackend records what Generate was called with.
type capturingBackend struct {
	mu       sync.Mutex
	messages []llm.ChatMessage
	format   *llm.ResponseFormat
}

func (c *capturingBackend) Name() string  { return "capture" }
func (c *capturingBackend) Model() string { return "capture" }

func (c *capturingBackend) Generate(_ context.Context, messages []llm.ChatMessage, format *llm.ResponseFormat) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = messages
	c.format = format
	return llm.Response{Content: `{"items":[]}`}, nil
}

func searchTask() Task {
	return NewTask(
		config.Intent{Name: "search", Tool: "codebase_search", Desc: "discovery queries", Reasoning: false},
		"payment processing",
		"a backend engineer new to the repo",
		config.QueryStyle{Name: "terse", Desc: "short keyword-heavy requests", Examples: []string{"auth retry logic?"}},
	)
}

func TestGenerateSendsSingleUserTurnRequestingJSON(t *testing.T) {
	backend := &capturingBackend{}
	g := NewGenerator(3)

	raw, err := g.Generate(context.Background(), backend, searchTask())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if raw != `{"items":[]}` {
		t.Errorf("unexpected response passthrough: %q", raw)
	}
	if len(backend.messages) != 1 || backend.messages[0].Role != "user" {
		t.Fatalf("expected exactly one user message, got %+v", backend.messages)
	}
	if backend.format == nil || backend.format.Type != llm.FormatJSONObject {
		t.Errorf("expected JSON object response format, got %s", backend.format.Type)
	}
}

func TestBuildPromptCarriesTaskContext(t *testing.T) {
	task := searchTask()
	prompt := buildPrompt(task, 3)

	for _, want := range []string{
		"Generate 3 diverse",
		"payment processing",
		"a backend engineer new to the repo",
		"codebase_search",
		`"items"`,
		"auth retry logic?",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptDirectAnswerIntent(t *testing.T) {
	task := NewTask(
		config.Intent{Name: "answer", Tool: "", Desc: "answerable without tools"},
		"databases", "a curious junior dev", config.QueryStyle{Name: "plain"},
	)
	prompt := buildPrompt(task, 2)
	if !strings.Contains(prompt, "NONE (direct answer)") {
		t.Error("direct-answer tasks must target no tool")
	}
	if !strings.Contains(prompt, `"complete"`) && !strings.Contains(prompt, "complete") {
		t.Error("prompt should describe the complete status")
	}
}

func TestTaskProfileReflectsReasoning(t *testing.T) {
	reasoning := NewTask(config.Intent{Name: "compute", Tool: "sandbox_exec", Reasoning: true}, "d", "p", config.QueryStyle{})
	if !reasoning.Profile().NeedsReasoning {
		t.Error("reasoning intents must request logic-strong backends")
	}
	diversity := searchTask()
	if diversity.Profile().NeedsReasoning {
		t.Error("diversity intents must not request logic-strong backends")
	}
}

func TestNewTaskAssignsUniqueIDs(t *testing.T) {
	a := searchTask()
	b := searchTask()
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty task IDs, got %q and %q", a.ID, b.ID)
	}
}
