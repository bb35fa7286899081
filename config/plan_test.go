package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPlanIsValid(t *testing.T) {
	plan := DefaultPlan()
	if err := plan.Validate(); err != nil {
		t.Fatalf("default plan should validate: %v", err)
	}
	if len(plan.Intents) != 5 {
		t.Errorf("expected 5 intents, got %d", len(plan.Intents))
	}
	var hasDirect bool
	for _, intent := range plan.Intents {
		if intent.Tool == "" {
			hasDirect = true
		}
	}
	if !hasDirect {
		t.Error("default plan should include a direct-answer intent")
	}
}

func TestLoadPlanFromFile(t *testing.T) {
	content := `
domains: ["Payments API"]
personas: ["Senior Engineer"]
query_styles:
  - name: direct
    desc: "Straightforward"
    examples: ["Find the handler"]
intents:
  - name: search
    tool: codebase_search
    weight: 0.7
  - name: answer
    tool: ""
    weight: 0.3
backends:
  - provider: groq
    model: llama-3.3-70b-versatile
    weight: 1.0
    logic_strong: true
`
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	plan, err := LoadPlan(path)
	if err != nil {
		t.Fatalf("LoadPlan failed: %v", err)
	}
	if len(plan.Intents) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(plan.Intents))
	}
	if plan.Intents[0].Tool != "codebase_search" {
		t.Errorf("unexpected tool: %q", plan.Intents[0].Tool)
	}
	if !plan.Backends[0].LogicStrong {
		t.Error("backend should be marked logic_strong")
	}
}

func TestLoadPlanMissingFile(t *testing.T) {
	if _, err := LoadPlan(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsBadPlans(t *testing.T) {
	base := func() *Plan {
		return &Plan{
			Domains:  []string{"d"},
			Personas: []string{"p"},
			Intents:  []Intent{{Name: "search", Tool: "codebase_search", Weight: 1}},
			Backends: []BackendSpec{{Provider: "groq", Model: "m"}},
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base plan should validate: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Plan)
		wantErr string
	}{
		{"no domains", func(p *Plan) { p.Domains = nil }, "no domains"},
		{"no personas", func(p *Plan) { p.Personas = nil }, "no personas"},
		{"no intents", func(p *Plan) { p.Intents = nil }, "no intents"},
		{"no backends", func(p *Plan) { p.Backends = nil }, "no backends"},
		{"empty intent name", func(p *Plan) { p.Intents[0].Name = "" }, "empty name"},
		{"zero weight", func(p *Plan) { p.Intents[0].Weight = 0 }, "non-positive weight"},
		{"negative weight", func(p *Plan) { p.Intents[0].Weight = -0.5 }, "non-positive weight"},
		{"duplicate intent", func(p *Plan) {
			p.Intents = append(p.Intents, Intent{Name: "search", Weight: 1})
		}, "duplicate intent"},
		{"backend without provider", func(p *Plan) { p.Backends[0].Provider = "" }, "no provider"},
	}
	for _, tt := range tests {
		plan := base()
		tt.mutate(plan)
		err := plan.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: error %q should contain %q", tt.name, err, tt.wantErr)
		}
	}
}
