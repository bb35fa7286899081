// Package validate turns raw generation output into typed, trusted
// records or structured rejections.
//
// Validation is two-phase on purpose: structural failures are cheap
// and short-circuit before the domain-logic predicates run.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	ijson "github.com/ria-19/routegen/internal/json"
	"github.com/ria-19/routegen/schema"
)

// Reason classifies why an attempt was rejected. The taxonomy is
// fixed; callers branch on it to decide retry vs discard.
type Reason string

const (
	ReasonSchemaMismatch         Reason = "schema_mismatch"
	ReasonDiscriminatorAmbiguous Reason = "discriminator_ambiguous"
	ReasonDomainLogicViolation   Reason = "domain_logic_violation"
)

// Rejection is a structured refusal of one generated item.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Outcome is either an accepted Example with its variant tag, or a
// Rejection. Exactly one of Example and Rejection is set. Variant is
// empty for complete-status records, which route to no tool.
type Outcome struct {
	Example   *schema.Example
	Variant   schema.ToolName
	Rejection *Rejection
}

// Accepted reports whether the outcome carries a usable Example.
func (o Outcome) Accepted() bool { return o.Rejection == nil }

// Config holds the quality thresholds. Zero value is unusable; start
// from DefaultConfig.
type Config struct {
	MinQueryLen        int
	MinThoughtWords    int
	MaxThoughtWords    int
	MinAnswerLen       int
	ParrotingThreshold float64

	// VariantVocabulary maps each variant to words its reasoning trace
	// must reference. An empty list disables the check for that variant.
	VariantVocabulary map[schema.ToolName][]string
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinQueryLen:        5,
		MinThoughtWords:    8,
		MaxThoughtWords:    100,
		MinAnswerLen:       10,
		ParrotingThreshold: 0.8,
		VariantVocabulary: map[schema.ToolName][]string{
			schema.ToolCodebaseSearch: {"search", "find", "locate", "look", "where", "trace", "inspect", "codebase"},
			schema.ToolFileManager:    {"edit", "update", "write", "patch", "modify", "change", "fix", "read", "file", "path"},
			schema.ToolSandboxExec:    {"run", "execute", "test", "verify", "compute", "benchmark", "reproduce", "sandbox", "snippet"},
			schema.ToolAskHuman:       {"ask", "clarify", "confirm", "approval", "human", "escalate", "unclear", "ambiguous", "missing"},
		},
	}
}

// Validator parses and validates generation output against the
// schema registry.
type Validator struct {
	registry *schema.Registry
	cfg      Config
}

// New creates a validator over the given registry.
func New(registry *schema.Registry, cfg Config) *Validator {
	return &Validator{registry: registry, cfg: cfg}
}

// ValidateResponse parses one raw backend response into its batch
// envelope and validates every item independently. A response that
// yields no parseable envelope produces a single SchemaMismatch
// outcome for the whole attempt.
func (v *Validator) ValidateResponse(raw string) []Outcome {
	batch, err := ijson.ExtractInto[rawBatch](raw)
	if err != nil {
		return []Outcome{reject(ReasonSchemaMismatch, fmt.Sprintf("response is not a batch envelope: %v", err))}
	}
	if len(batch.Items) == 0 {
		return []Outcome{reject(ReasonSchemaMismatch, "batch envelope has no items")}
	}
	outcomes := make([]Outcome, 0, len(batch.Items))
	for _, item := range batch.Items {
		outcomes = append(outcomes, v.ValidateItem(item))
	}
	return outcomes
}

// rawBatch and rawItem keep parsing shallow so discriminator problems
// are distinguishable from ordinary structural ones.
type rawBatch struct {
	Items []json.RawMessage `json:"items"`
}

type rawItem struct {
	UserQuery string `json:"user_query"`
	Output    struct {
		Status      schema.Status   `json:"status"`
		Thought     string          `json:"thought"`
		ToolUse     json.RawMessage `json:"tool_use"`
		FinalAnswer string          `json:"final_answer"`
	} `json:"output"`
}

type toolUseEnvelope struct {
	ToolName  *schema.ToolName `json:"tool_name"`
	Arguments json.RawMessage  `json:"arguments"`
}

// ValidateExample re-validates an already-decoded record, as the
// audit path does for persisted datasets.
func (v *Validator) ValidateExample(example *schema.Example) Outcome {
	data, err := json.Marshal(example)
	if err != nil {
		return reject(ReasonSchemaMismatch, fmt.Sprintf("record does not encode: %v", err))
	}
	return v.ValidateItem(data)
}

// ValidateItem validates a single candidate record.
func (v *Validator) ValidateItem(data json.RawMessage) Outcome {
	var item rawItem
	if err := json.Unmarshal(data, &item); err != nil {
		return reject(ReasonSchemaMismatch, fmt.Sprintf("item is not a record: %v", err))
	}

	// Phase 1: structural.
	var fieldErrs []schema.FieldError
	query := strings.TrimSpace(item.UserQuery)
	if query == "" {
		fieldErrs = append(fieldErrs, schema.FieldError{Field: "user_query", Message: "required"})
	}

	switch item.Output.Status {
	case schema.StatusComplete:
		return v.validateComplete(item, query, fieldErrs)
	case schema.StatusRunning:
	case "":
		fieldErrs = append(fieldErrs, schema.FieldError{Field: "output.status", Message: "required"})
		return reject(ReasonSchemaMismatch, joinFieldErrors(fieldErrs))
	default:
		fieldErrs = append(fieldErrs, schema.FieldError{Field: "output.status", Message: fmt.Sprintf("must be running or complete, got %q", item.Output.Status)})
		return reject(ReasonSchemaMismatch, joinFieldErrors(fieldErrs))
	}

	// Running records must route to exactly one tool. Inspect the
	// discriminator first: its absence is a first-class rejection, not
	// a parse retry.
	if len(item.Output.ToolUse) == 0 || string(item.Output.ToolUse) == "null" {
		return reject(ReasonSchemaMismatch, "status running requires tool_use")
	}
	var env toolUseEnvelope
	if err := json.Unmarshal(item.Output.ToolUse, &env); err != nil {
		return reject(ReasonSchemaMismatch, fmt.Sprintf("tool_use is not an object: %v", err))
	}
	if env.ToolName == nil || *env.ToolName == "" {
		return reject(ReasonDiscriminatorAmbiguous, "tool_use carries no "+schema.Discriminator)
	}
	spec, err := v.registry.Lookup(*env.ToolName)
	if err != nil {
		return reject(ReasonDiscriminatorAmbiguous, err.Error())
	}

	args := spec.NewArgs()
	if len(env.Arguments) > 0 && string(env.Arguments) != "null" {
		if err := json.Unmarshal(env.Arguments, args); err != nil {
			return reject(ReasonSchemaMismatch, fmt.Sprintf("arguments for %s: %v", spec.Name, err))
		}
	}
	// Strip before the field checks so textual nulls read as absent.
	args.Strip()

	thought := collapseWhitespace(item.Output.Thought)
	if thought == "" {
		fieldErrs = append(fieldErrs, schema.FieldError{Field: "output.thought", Message: "required when status is running"})
	}
	fieldErrs = append(fieldErrs, spec.Check(args)...)
	if len(fieldErrs) > 0 {
		return reject(ReasonSchemaMismatch, joinFieldErrors(fieldErrs))
	}

	// Phase 2: domain logic.
	if len(query) < v.cfg.MinQueryLen {
		return reject(ReasonDomainLogicViolation, fmt.Sprintf("query too short: %d chars", len(query)))
	}
	if err := v.checkThought(thought, query, spec.Name); err != nil {
		return reject(ReasonDomainLogicViolation, err.Error())
	}
	if err := spec.Predicate(args, query); err != nil {
		return reject(ReasonDomainLogicViolation, err.Error())
	}

	example := &schema.Example{
		UserQuery: query,
		Output: schema.Output{
			Status:  schema.StatusRunning,
			Thought: thought,
			ToolUse: &schema.ToolUse{Name: spec.Name, Args: args},
		},
	}
	example.Strip()
	return Outcome{Example: example, Variant: spec.Name}
}

func (v *Validator) validateComplete(item rawItem, query string, fieldErrs []schema.FieldError) Outcome {
	answer := strings.TrimSpace(item.Output.FinalAnswer)
	if answer == "" {
		fieldErrs = append(fieldErrs, schema.FieldError{Field: "output.final_answer", Message: "required when status is complete"})
	}
	if len(item.Output.ToolUse) > 0 && string(item.Output.ToolUse) != "null" {
		fieldErrs = append(fieldErrs, schema.FieldError{Field: "output.tool_use", Message: "must be absent when status is complete"})
	}
	if len(fieldErrs) > 0 {
		return reject(ReasonSchemaMismatch, joinFieldErrors(fieldErrs))
	}
	if len(query) < v.cfg.MinQueryLen {
		return reject(ReasonDomainLogicViolation, fmt.Sprintf("query too short: %d chars", len(query)))
	}
	if len(answer) < v.cfg.MinAnswerLen {
		return reject(ReasonDomainLogicViolation, fmt.Sprintf("final answer too short: %d chars", len(answer)))
	}
	example := &schema.Example{
		UserQuery: query,
		Output:    schema.Output{Status: schema.StatusComplete, FinalAnswer: answer},
	}
	example.Strip()
	return Outcome{Example: example}
}

// checkThought enforces the reasoning-trace constraints: length
// bounds, no parroting, and a reference to the chosen variant.
func (v *Validator) checkThought(thought, query string, variant schema.ToolName) error {
	words := strings.Fields(thought)
	if len(words) < v.cfg.MinThoughtWords {
		return fmt.Errorf("thought too short: %d words (min %d)", len(words), v.cfg.MinThoughtWords)
	}
	if v.cfg.MaxThoughtWords > 0 && len(words) > v.cfg.MaxThoughtWords {
		return fmt.Errorf("thought too long: %d words (max %d)", len(words), v.cfg.MaxThoughtWords)
	}
	if isParroting(query, thought, v.cfg.ParrotingThreshold) {
		return fmt.Errorf("thought parrots the query")
	}
	vocabulary := v.cfg.VariantVocabulary[variant]
	if len(vocabulary) > 0 && !mentionsAny(thought, vocabulary) {
		return fmt.Errorf("thought does not reference the %s variant", variant)
	}
	return nil
}

func mentionsAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// isParroting detects a reasoning trace that restates the query
// instead of reasoning about it: a shared prefix or heavy word
// overlap (Jaccard similarity over word sets).
func isParroting(query, thought string, threshold float64) bool {
	q := truncate(strings.ToLower(strings.TrimSpace(query)), 50)
	t := truncate(strings.ToLower(strings.TrimSpace(thought)), 50)
	if len(q) >= 20 && strings.HasPrefix(t, q[:20]) {
		return true
	}
	qWords := wordSet(q)
	tWords := wordSet(t)
	if len(qWords) == 0 || len(tWords) == 0 {
		return false
	}
	intersection := 0
	for w := range qWords {
		if _, ok := tWords[w]; ok {
			intersection++
		}
	}
	union := len(qWords) + len(tWords) - intersection
	return float64(intersection)/float64(union) >= threshold
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinFieldErrors(errs []schema.FieldError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

func reject(reason Reason, detail string) Outcome {
	return Outcome{Rejection: &Rejection{Reason: reason, Detail: detail}}
}
