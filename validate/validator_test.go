package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/ria-19/routegen/schema"
)

func newTestValidator() *Validator {
	return New(schema.NewRegistry(schema.DefaultRules()), DefaultConfig())
}

// item builds one raw candidate record for ValidateItem.
func item(t *testing.T, userQuery, status, thought, toolUse, finalAnswer string) json.RawMessage {
	t.Helper()
	parts := []string{fmt.Sprintf("%q:%q", "status", status)}
	if thought != "" {
		parts = append(parts, fmt.Sprintf("%q:%q", "thought", thought))
	}
	if toolUse != "" {
		parts = append(parts, fmt.Sprintf("%q:%s", "tool_use", toolUse))
	}
	if finalAnswer != "" {
		parts = append(parts, fmt.Sprintf("%q:%q", "final_answer", finalAnswer))
	}
	record := fmt.Sprintf(`{"user_query":%q,"output":{%s}}`, userQuery, strings.Join(parts, ","))
	return json.RawMessage(record)
}

const goodSearchToolUse = `{"tool_name":"codebase_search","arguments":{"query":"retry backoff","mode":"semantic"}}`

func TestValidateItemAcceptsWellFormedRunning(t *testing.T) {
	v := newTestValidator()
	outcome := v.ValidateItem(item(t,
		"where does the client apply retry backoff",
		"running",
		"I should search the codebase to locate the retry backoff implementation before answering.",
		goodSearchToolUse,
		""))
	if !outcome.Accepted() {
		t.Fatalf("expected acceptance, got %v", outcome.Rejection)
	}
	if outcome.Variant != schema.ToolCodebaseSearch {
		t.Errorf("expected variant codebase_search, got %s", outcome.Variant)
	}
	if outcome.Example.Output.Status != schema.StatusRunning {
		t.Errorf("unexpected status %s", outcome.Example.Output.Status)
	}
}

func TestValidateItemMissingDiscriminatorIsAmbiguous(t *testing.T) {
	v := newTestValidator()
	outcome := v.ValidateItem(item(t,
		"where does the client apply retry backoff",
		"running",
		"I should search the codebase to locate the retry backoff implementation before answering.",
		`{"arguments":{"query":"retry backoff"}}`,
		""))
	if outcome.Accepted() {
		t.Fatal("expected rejection")
	}
	if outcome.Rejection.Reason != ReasonDiscriminatorAmbiguous {
		t.Errorf("expected discriminator_ambiguous, got %s", outcome.Rejection.Reason)
	}
}

func TestValidateItemUnknownToolIsAmbiguous(t *testing.T) {
	v := newTestValidator()
	outcome := v.ValidateItem(item(t,
		"where does the client apply retry backoff",
		"running",
		"I should search the codebase to locate the retry backoff implementation before answering.",
		`{"tool_name":"web_search","arguments":{"query":"retry backoff"}}`,
		""))
	if outcome.Accepted() || outcome.Rejection.Reason != ReasonDiscriminatorAmbiguous {
		t.Fatalf("expected discriminator_ambiguous, got %v", outcome.Rejection)
	}
}

func TestValidateItemAggregatesFieldErrors(t *testing.T) {
	v := newTestValidator()
	// Missing thought AND missing query inside arguments: both must be
	// reported in one rejection.
	outcome := v.ValidateItem(item(t,
		"where does the client apply retry backoff",
		"running",
		"",
		`{"tool_name":"codebase_search","arguments":{"mode":"semantic"}}`,
		""))
	if outcome.Accepted() {
		t.Fatal("expected rejection")
	}
	if outcome.Rejection.Reason != ReasonSchemaMismatch {
		t.Fatalf("expected schema_mismatch, got %s", outcome.Rejection.Reason)
	}
	detail := outcome.Rejection.Detail
	if !strings.Contains(detail, "thought") || !strings.Contains(detail, "query") {
		t.Errorf("expected both field errors in one rejection, got %q", detail)
	}
}

func TestValidateItemExactModeWithoutSymbolIsDomainViolation(t *testing.T) {
	v := newTestValidator()
	outcome := v.ValidateItem(item(t,
		"find where authentication tokens are validated",
		"running",
		"The request is conceptual, so a codebase search is the right way to locate that area.",
		`{"tool_name":"codebase_search","arguments":{"query":"token validation","mode":"exact"}}`,
		""))
	if outcome.Accepted() {
		t.Fatal("expected rejection")
	}
	if outcome.Rejection.Reason != ReasonDomainLogicViolation {
		t.Errorf("structurally valid record must fail as domain violation, got %s", outcome.Rejection.Reason)
	}
}

func TestValidateItemStructuralShortCircuitsDomain(t *testing.T) {
	v := newTestValidator()
	// Invalid mode (structural) AND untraceable exact-search semantics:
	// the structural reason must win.
	outcome := v.ValidateItem(item(t,
		"find where authentication tokens are validated",
		"running",
		"The request is conceptual, so a codebase search is the right way to locate that area.",
		`{"tool_name":"codebase_search","arguments":{"query":"token validation","mode":"fuzzy"}}`,
		""))
	if outcome.Accepted() || outcome.Rejection.Reason != ReasonSchemaMismatch {
		t.Fatalf("expected schema_mismatch before domain checks, got %v", outcome.Rejection)
	}
}

func TestValidateItemUntraceablePathIsDomainViolation(t *testing.T) {
	v := newTestValidator()
	outcome := v.ValidateItem(item(t,
		"tidy up the billing module",
		"running",
		"I need to read that file first so the later edit does not break the module.",
		`{"tool_name":"file_manager","arguments":{"operation":"read","path":"src/billing/invoice.py"}}`,
		""))
	if outcome.Accepted() || outcome.Rejection.Reason != ReasonDomainLogicViolation {
		t.Fatalf("expected domain violation for untraceable path, got %v", outcome.Rejection)
	}
}

func TestValidateItemThoughtBounds(t *testing.T) {
	v := newTestValidator()

	short := v.ValidateItem(item(t,
		"where does the client apply retry backoff",
		"running",
		"Too short.",
		goodSearchToolUse,
		""))
	if short.Accepted() || short.Rejection.Reason != ReasonDomainLogicViolation {
		t.Errorf("expected domain violation for short thought, got %v", short.Rejection)
	}

	long := v.ValidateItem(item(t,
		"where does the client apply retry backoff",
		"running",
		strings.Repeat("search the codebase carefully ", 40),
		goodSearchToolUse,
		""))
	if long.Accepted() || long.Rejection.Reason != ReasonDomainLogicViolation {
		t.Errorf("expected domain violation for overlong thought, got %v", long.Rejection)
	}
}

func TestValidateItemRejectsParroting(t *testing.T) {
	v := newTestValidator()
	query := "where does the client apply retry backoff in the code"
	outcome := v.ValidateItem(item(t,
		query,
		"running",
		query+" is what I will search for right now",
		goodSearchToolUse,
		""))
	if outcome.Accepted() || outcome.Rejection.Reason != ReasonDomainLogicViolation {
		t.Fatalf("expected parroting rejection, got %v", outcome.Rejection)
	}
}

func TestValidateItemCompleteRecord(t *testing.T) {
	v := newTestValidator()

	good := v.ValidateItem(item(t,
		"what does a context timeout do",
		"complete",
		"",
		"",
		"A context timeout cancels downstream work once the deadline passes."))
	if !good.Accepted() {
		t.Fatalf("expected acceptance, got %v", good.Rejection)
	}
	if good.Variant != "" {
		t.Errorf("complete records carry no variant, got %s", good.Variant)
	}

	withTool := v.ValidateItem(item(t,
		"what does a context timeout do",
		"complete",
		"",
		goodSearchToolUse,
		"A context timeout cancels downstream work once the deadline passes."))
	if withTool.Accepted() || withTool.Rejection.Reason != ReasonSchemaMismatch {
		t.Errorf("complete record with tool_use must be schema_mismatch, got %v", withTool.Rejection)
	}

	shortAnswer := v.ValidateItem(item(t,
		"what does a context timeout do",
		"complete",
		"",
		"",
		"Yes."))
	if shortAnswer.Accepted() || shortAnswer.Rejection.Reason != ReasonDomainLogicViolation {
		t.Errorf("expected short-answer domain violation, got %v", shortAnswer.Rejection)
	}
}

func TestValidateItemUnknownStatus(t *testing.T) {
	v := newTestValidator()
	outcome := v.ValidateItem(item(t, "what does a context timeout do", "paused", "", "", ""))
	if outcome.Accepted() || outcome.Rejection.Reason != ReasonSchemaMismatch {
		t.Fatalf("expected schema_mismatch for unknown status, got %v", outcome.Rejection)
	}
}

func TestValidateResponseEnvelope(t *testing.T) {
	v := newTestValidator()

	outcomes := v.ValidateResponse("this is not json at all")
	if len(outcomes) != 1 || outcomes[0].Accepted() {
		t.Fatalf("expected single rejection for unparseable response, got %v", outcomes)
	}
	if outcomes[0].Rejection.Reason != ReasonSchemaMismatch {
		t.Errorf("expected schema_mismatch, got %s", outcomes[0].Rejection.Reason)
	}

	empty := v.ValidateResponse(`{"items":[]}`)
	if len(empty) != 1 || empty[0].Accepted() {
		t.Fatalf("expected rejection for empty batch, got %v", empty)
	}
}

func TestValidateResponseMixedBatch(t *testing.T) {
	v := newTestValidator()
	good := string(item(t,
		"where does the client apply retry backoff",
		"running",
		"I should search the codebase to locate the retry backoff implementation before answering.",
		goodSearchToolUse,
		""))
	bad := string(item(t,
		"where does the client apply retry backoff",
		"running",
		"I should search the codebase to locate the retry backoff implementation before answering.",
		`{"arguments":{"query":"retry backoff"}}`,
		""))

	outcomes := v.ValidateResponse(fmt.Sprintf(`{"items":[%s,%s]}`, good, bad))
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if !outcomes[0].Accepted() {
		t.Errorf("first item should pass: %v", outcomes[0].Rejection)
	}
	if outcomes[1].Accepted() {
		t.Error("second item should fail independently of the first")
	}
}

func TestValidateResponseAcceptsFencedJSON(t *testing.T) {
	v := newTestValidator()
	good := string(item(t,
		"where does the client apply retry backoff",
		"running",
		"I should search the codebase to locate the retry backoff implementation before answering.",
		goodSearchToolUse,
		""))
	fenced := "```json\n" + fmt.Sprintf(`{"items":[%s]}`, good) + "\n```"
	outcomes := v.ValidateResponse(fenced)
	if len(outcomes) != 1 || !outcomes[0].Accepted() {
		t.Fatalf("expected fenced response to validate, got %v", outcomes)
	}
}

func TestValidateExampleRoundTrip(t *testing.T) {
	v := newTestValidator()
	example := &schema.Example{
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
	outcome := v.ValidateExample(example)
	if !outcome.Accepted() {
		t.Fatalf("persisted example should re-validate: %v", outcome.Rejection)
	}
}

func TestIsParroting(t *testing.T) {
	if !isParroting("find the retry logic in the client", "find the retry logic in the client please", 0.8) {
		t.Error("shared 20-char prefix should count as parroting")
	}
	if isParroting("find the retry logic", "The user needs the backoff implementation located, so searching is right.", 0.8) {
		t.Error("genuine reasoning should not count as parroting")
	}
}
