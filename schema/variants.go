// Package schema defines the closed set of record variants the pipeline
// can emit and the registry used to validate them.
//
// Information Hiding:
// - The discriminated-union wire format is encapsulated in ToolUse
// - Null-sentinel stripping rules are owned by the argument types
// - The set of valid variants is closed; unknown tags never pass through
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Discriminator is the field whose value selects the variant schema.
const Discriminator = "tool_name"

// ToolName identifies a tool-call variant.
type ToolName string

const (
	ToolCodebaseSearch ToolName = "codebase_search"
	ToolFileManager    ToolName = "file_manager"
	ToolSandboxExec    ToolName = "sandbox_exec"
	ToolAskHuman       ToolName = "ask_human"
)

// Status marks whether a record routes to a tool or answers directly.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
)

// SearchMode selects how codebase_search interprets its query.
type SearchMode string

const (
	SearchExact    SearchMode = "exact"
	SearchSemantic SearchMode = "semantic"
	SearchHybrid   SearchMode = "hybrid"
)

// FileOperation is the action a file_manager call performs.
type FileOperation string

const (
	FileOpList  FileOperation = "list"
	FileOpRead  FileOperation = "read"
	FileOpWrite FileOperation = "write"
	FileOpPatch FileOperation = "patch"
)

// ToolArgs is implemented by every variant's argument payload.
type ToolArgs interface {
	// Tool returns the variant tag the payload belongs to.
	Tool() ToolName

	// Strip removes optional fields holding a null sentinel.
	// Stripping is idempotent.
	Strip()
}

// CodebaseSearchArgs are the arguments for the codebase_search variant.
type CodebaseSearchArgs struct {
	Query       string     `json:"query"`
	Mode        SearchMode `json:"mode,omitempty"`
	FilePattern string     `json:"file_pattern,omitempty"`
}

func (a *CodebaseSearchArgs) Tool() ToolName { return ToolCodebaseSearch }

func (a *CodebaseSearchArgs) Strip() {
	if isNullSentinel(a.FilePattern) {
		a.FilePattern = ""
	}
}

// FileManagerArgs are the arguments for the file_manager variant.
// Content, TargetString and ReplacementString are pointers because
// "absent" and "present but empty" mean different things for patch.
type FileManagerArgs struct {
	Operation         FileOperation `json:"operation"`
	Path              string        `json:"path"`
	Content           *string       `json:"content,omitempty"`
	TargetString      *string       `json:"target_string,omitempty"`
	ReplacementString *string       `json:"replacement_string,omitempty"`
}

func (a *FileManagerArgs) Tool() ToolName { return ToolFileManager }

func (a *FileManagerArgs) Strip() {
	a.Content = stripSentinelPtr(a.Content)
	a.TargetString = stripSentinelPtr(a.TargetString)
	if a.Operation == FileOpPatch {
		// "" is a legal deletion patch, so only the textual null
		// spellings strip here.
		if a.ReplacementString != nil && *a.ReplacementString != "" && isNullSentinel(*a.ReplacementString) {
			a.ReplacementString = nil
		}
	} else {
		a.ReplacementString = stripSentinelPtr(a.ReplacementString)
	}
}

// SandboxExecArgs are the arguments for the sandbox_exec variant.
type SandboxExecArgs struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout,omitempty"`
}

func (a *SandboxExecArgs) Tool() ToolName { return ToolSandboxExec }

func (a *SandboxExecArgs) Strip() {}

// AskHumanArgs are the arguments for the ask_human variant.
type AskHumanArgs struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
}

func (a *AskHumanArgs) Tool() ToolName { return ToolAskHuman }

func (a *AskHumanArgs) Strip() {
	if isNullSentinel(a.Context) {
		a.Context = ""
	}
}

// ToolUse is the tagged union over all variants. On the wire it is
// {"tool_name": "...", "arguments": {...}}.
type ToolUse struct {
	Name ToolName
	Args ToolArgs
}

type toolUseEnvelope struct {
	ToolName  ToolName        `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
}

// MarshalJSON renders the envelope with the discriminator first.
func (t ToolUse) MarshalJSON() ([]byte, error) {
	if t.Args == nil {
		return nil, fmt.Errorf("tool_use %q has no arguments", t.Name)
	}
	args, err := json.Marshal(t.Args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(toolUseEnvelope{ToolName: t.Name, Arguments: args})
}

// UnmarshalJSON dispatches on the discriminator to the matching
// argument type. Unknown tags are an error, not a fallback.
func (t *ToolUse) UnmarshalJSON(data []byte) error {
	var env toolUseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	args, err := newArgs(env.ToolName)
	if err != nil {
		return err
	}
	if len(env.Arguments) > 0 {
		if err := json.Unmarshal(env.Arguments, args); err != nil {
			return fmt.Errorf("arguments for %s: %w", env.ToolName, err)
		}
	}
	t.Name = env.ToolName
	t.Args = args
	return nil
}

func newArgs(name ToolName) (ToolArgs, error) {
	switch name {
	case ToolCodebaseSearch:
		return &CodebaseSearchArgs{}, nil
	case ToolFileManager:
		return &FileManagerArgs{}, nil
	case ToolSandboxExec:
		return &SandboxExecArgs{}, nil
	case ToolAskHuman:
		return &AskHumanArgs{}, nil
	default:
		return nil, fmt.Errorf("unknown %s: %q", Discriminator, name)
	}
}

// Output is the routing decision a record trains: either a tool call
// with its reasoning trace, or a direct answer.
type Output struct {
	Status      Status   `json:"status"`
	Thought     string   `json:"thought,omitempty"`
	ToolUse     *ToolUse `json:"tool_use,omitempty"`
	FinalAnswer string   `json:"final_answer,omitempty"`
}

// Example is one labeled training record.
type Example struct {
	UserQuery string `json:"user_query"`
	Output    Output `json:"output"`
}

// Batch is the envelope a single generation response parses into.
type Batch struct {
	Items []Example `json:"items"`
}

// Strip removes null-sentinel optional fields from the whole record.
// Idempotent; called before fingerprinting and before persistence.
func (e *Example) Strip() {
	e.Output.Thought = strings.TrimSpace(e.Output.Thought)
	if isNullSentinel(e.Output.FinalAnswer) {
		e.Output.FinalAnswer = ""
	}
	if e.Output.ToolUse != nil && e.Output.ToolUse.Args != nil {
		e.Output.ToolUse.Args.Strip()
	}
}

// isNullSentinel reports whether an optional text value is one of the
// null spellings generation backends emit instead of omitting a field.
func isNullSentinel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none", "nil", "n/a":
		return true
	}
	return false
}

func stripSentinelPtr(p *string) *string {
	if p == nil || isNullSentinel(*p) {
		return nil
	}
	return p
}
