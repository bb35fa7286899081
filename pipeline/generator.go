package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/ria-19/routegen/config"
	"github.com/ria-19/routegen/llm"
)

// Task is one (intent, domain, persona, style) generation request.
type Task struct {
	ID      string
	Intent  config.Intent
	Domain  string
	Persona string
	Style   config.QueryStyle
}

// NewTask creates a task with a fresh ID.
func NewTask(intent config.Intent, domain, persona string, style config.QueryStyle) Task {
	return Task{ID: uuid.NewString(), Intent: intent, Domain: domain, Persona: persona, Style: style}
}

// Profile maps the task onto the pool's scheduling traits.
func (t Task) Profile() llm.TaskProfile {
	return llm.TaskProfile{NeedsReasoning: t.Intent.Reasoning}
}

// Generator issues one generation request per attempt. It never
// retries; retry and failover policy belong to the orchestrator.
type Generator struct {
	batchSize int
}

// NewGenerator creates a generator requesting batchSize candidate
// examples per backend call.
func NewGenerator(batchSize int) *Generator {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Generator{batchSize: batchSize}
}

// BatchSize returns how many candidates one request asks for.
func (g *Generator) BatchSize() int { return g.batchSize }

// Generate sends one request to the given backend and returns the raw
// response text. Failures come back as *llm.BackendError so the
// caller can decide retry vs failover.
func (g *Generator) Generate(ctx context.Context, backend llm.Provider, task Task) (string, error) {
	prompt := buildPrompt(task, g.batchSize)

	resp, err := backend.Generate(ctx, []llm.ChatMessage{llm.UserMessage(prompt)}, llm.JSONObjectFormat())
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
