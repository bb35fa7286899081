package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// FieldError is a single structural complaint about one argument field.
// The validator aggregates these into one rejection per attempt.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// Rules holds the configurable thresholds behind the domain-logic
// predicates. The zero value is unusable; start from DefaultRules.
type Rules struct {
	MinSearchQueryLen     int
	GenericSearchTerms    []string
	DangerousCodePatterns []string
	DestructiveKeywords   []string
	MinQuestionLen        int
}

// DefaultRules returns the thresholds used when the plan does not
// override them.
func DefaultRules() Rules {
	return Rules{
		MinSearchQueryLen:     2,
		GenericSearchTerms:    []string{"code", "file", "function", "class", "todo"},
		DangerousCodePatterns: []string{"rm -rf", "os.system", "__import__", "eval("},
		DestructiveKeywords:   []string{"delete", "drop", "truncate", "format", "shutdown", "kill"},
		MinQuestionLen:        5,
	}
}

// VariantSpec is what the registry hands out for one tool kind: a
// constructor for the typed payload, the structural field checks, and
// the domain-logic predicate.
type VariantSpec struct {
	Name ToolName

	// NewArgs returns a fresh payload for decoding.
	NewArgs func() ToolArgs

	// Check performs structural validation of required/optional fields
	// and literal constraints. It returns every field error at once.
	Check func(args ToolArgs) []FieldError

	// Predicate enforces the variant's domain-logic constraints against
	// the user query the record claims to answer.
	Predicate func(args ToolArgs, userQuery string) error
}

// Registry is the closed-world lookup from discriminator value to
// variant spec. Unknown tags are rejected, never passed through.
type Registry struct {
	rules Rules
	specs map[ToolName]VariantSpec
	order []ToolName
}

// NewRegistry builds the registry over the closed variant set with the
// given domain rules bound into each predicate.
func NewRegistry(rules Rules) *Registry {
	r := &Registry{rules: rules, specs: make(map[ToolName]VariantSpec)}
	r.register(VariantSpec{
		Name:      ToolCodebaseSearch,
		NewArgs:   func() ToolArgs { return &CodebaseSearchArgs{} },
		Check:     checkCodebaseSearch,
		Predicate: r.searchPredicate,
	})
	r.register(VariantSpec{
		Name:      ToolFileManager,
		NewArgs:   func() ToolArgs { return &FileManagerArgs{} },
		Check:     checkFileManager,
		Predicate: r.filePredicate,
	})
	r.register(VariantSpec{
		Name:      ToolSandboxExec,
		NewArgs:   func() ToolArgs { return &SandboxExecArgs{} },
		Check:     checkSandboxExec,
		Predicate: r.sandboxPredicate,
	})
	r.register(VariantSpec{
		Name:      ToolAskHuman,
		NewArgs:   func() ToolArgs { return &AskHumanArgs{} },
		Check:     checkAskHuman,
		Predicate: r.askHumanPredicate,
	})
	return r
}

func (r *Registry) register(spec VariantSpec) {
	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
}

// Lookup returns the spec for a discriminator value. Unknown values
// are an error.
func (r *Registry) Lookup(name ToolName) (VariantSpec, error) {
	spec, ok := r.specs[name]
	if !ok {
		return VariantSpec{}, fmt.Errorf("unknown %s: %q", Discriminator, name)
	}
	return spec, nil
}

// Names returns the variant tags in registration order.
func (r *Registry) Names() []ToolName {
	return append([]ToolName(nil), r.order...)
}

// Structural checks

func checkCodebaseSearch(args ToolArgs) []FieldError {
	a := args.(*CodebaseSearchArgs)
	var errs []FieldError
	if strings.TrimSpace(a.Query) == "" {
		errs = append(errs, FieldError{"query", "required"})
	}
	switch a.Mode {
	case "", SearchExact, SearchSemantic, SearchHybrid:
	default:
		errs = append(errs, FieldError{"mode", fmt.Sprintf("must be exact, semantic or hybrid, got %q", a.Mode)})
	}
	return errs
}

func checkFileManager(args ToolArgs) []FieldError {
	a := args.(*FileManagerArgs)
	var errs []FieldError
	switch a.Operation {
	case FileOpList, FileOpRead, FileOpWrite, FileOpPatch:
	case "":
		errs = append(errs, FieldError{"operation", "required"})
	default:
		errs = append(errs, FieldError{"operation", fmt.Sprintf("must be list, read, write or patch, got %q", a.Operation)})
	}
	if strings.TrimSpace(a.Path) == "" {
		errs = append(errs, FieldError{"path", "required"})
	}
	if a.Operation == FileOpWrite && (a.Content == nil || *a.Content == "") {
		errs = append(errs, FieldError{"content", "required for operation write"})
	}
	if a.Operation == FileOpPatch {
		if a.TargetString == nil || *a.TargetString == "" {
			errs = append(errs, FieldError{"target_string", "required for operation patch"})
		}
		// Empty replacement is a deletion patch; absent is an error.
		if a.ReplacementString == nil {
			errs = append(errs, FieldError{"replacement_string", "required for operation patch (empty string allowed)"})
		}
	}
	return errs
}

func checkSandboxExec(args ToolArgs) []FieldError {
	a := args.(*SandboxExecArgs)
	var errs []FieldError
	if strings.TrimSpace(a.Code) == "" {
		errs = append(errs, FieldError{"code", "required"})
	}
	if a.TimeoutSeconds < 0 {
		errs = append(errs, FieldError{"timeout", "must not be negative"})
	}
	return errs
}

func checkAskHuman(args ToolArgs) []FieldError {
	a := args.(*AskHumanArgs)
	var errs []FieldError
	if strings.TrimSpace(a.Question) == "" {
		errs = append(errs, FieldError{"question", "required"})
	}
	return errs
}

// Domain-logic predicates

func (r *Registry) searchPredicate(args ToolArgs, userQuery string) error {
	a := args.(*CodebaseSearchArgs)
	query := strings.TrimSpace(a.Query)
	if len(query) < r.rules.MinSearchQueryLen {
		return fmt.Errorf("search query too short: %q", query)
	}
	for _, generic := range r.rules.GenericSearchTerms {
		if strings.EqualFold(query, generic) {
			return fmt.Errorf("search query too generic: %q", query)
		}
	}
	// Exact mode is for literal symbols. A query that names no symbol
	// cannot justify an exact search.
	if a.Mode == SearchExact && !NamesLiteralSymbol(userQuery) && !NamesLiteralSymbol(a.Query) {
		return fmt.Errorf("mode exact but query names no literal symbol: %q", userQuery)
	}
	return nil
}

func (r *Registry) filePredicate(args ToolArgs, userQuery string) error {
	a := args.(*FileManagerArgs)
	if !PathTraceable(a.Path, userQuery) {
		return fmt.Errorf("path %q not traceable to query text", a.Path)
	}
	if a.Operation == FileOpPatch && a.TargetString != nil && a.ReplacementString != nil &&
		*a.TargetString == *a.ReplacementString {
		return fmt.Errorf("patch target and replacement are identical")
	}
	return nil
}

func (r *Registry) sandboxPredicate(args ToolArgs, _ string) error {
	a := args.(*SandboxExecArgs)
	for _, pattern := range r.rules.DangerousCodePatterns {
		if strings.Contains(a.Code, pattern) {
			return fmt.Errorf("sandbox code contains dangerous pattern %q", pattern)
		}
	}
	return nil
}

var interrogativeMarkers = []string{"?", "what", "how", "which", "should", "can", "could", "clarify", "confirm"}

func (r *Registry) askHumanPredicate(args ToolArgs, userQuery string) error {
	a := args.(*AskHumanArgs)
	question := strings.TrimSpace(a.Question)
	if len(question) < r.rules.MinQuestionLen {
		return fmt.Errorf("ask_human question too short: %q", question)
	}
	lower := strings.ToLower(question)
	for _, marker := range interrogativeMarkers {
		if strings.Contains(lower, marker) {
			return nil
		}
	}
	// A flat statement is still a valid escalation when the query asks
	// for something destructive that needs sign-off.
	queryLower := strings.ToLower(userQuery)
	for _, keyword := range r.rules.DestructiveKeywords {
		if strings.Contains(queryLower, keyword) {
			return nil
		}
	}
	return fmt.Errorf("ask_human content does not appear to be a question")
}

// NamesLiteralSymbol reports whether free text names a concrete code
// symbol: an identifier with call syntax, snake_case, dotted or
// path-like names, or camelCase. Plain prose does not.
func NamesLiteralSymbol(text string) bool {
	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, ",;:!\"'`")
		if token == "" {
			continue
		}
		if strings.ContainsAny(token, "(_") || strings.Contains(token, "::") {
			return true
		}
		if strings.Contains(token, ".") && !strings.HasSuffix(token, ".") {
			return true
		}
		if strings.Contains(token, "/") {
			return true
		}
		if hasCamelCase(token) {
			return true
		}
	}
	return false
}

func hasCamelCase(token string) bool {
	prev := rune(0)
	for _, r := range token {
		if unicode.IsUpper(r) && unicode.IsLower(prev) {
			return true
		}
		prev = r
	}
	return false
}

// PathTraceable reports whether a file path is grounded in the query
// text: either the full path or its final component appears verbatim
// (case-insensitively) in the query.
func PathTraceable(path, query string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}
	queryLower := strings.ToLower(query)
	if strings.Contains(queryLower, strings.ToLower(path)) {
		return true
	}
	if idx := strings.LastIndex(path, "/"); idx >= 0 && idx < len(path)-1 {
		base := strings.ToLower(path[idx+1:])
		return strings.Contains(queryLower, base)
	}
	return false
}
