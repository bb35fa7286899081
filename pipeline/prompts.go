// Generation prompt construction.
//
// The prompt carries the intent contract, the variant's schema
// constraints and the query style guide so the backend produces
// records the validator can hold to account.

package pipeline

import (
	"fmt"
	"strings"

	"github.com/ria-19/routegen/schema"
)

// buildPrompt renders the generation request for one task.
func buildPrompt(task Task, batchSize int) string {
	toolName := task.Intent.Tool
	target := toolName
	if target == "" {
		target = "NONE (direct answer)"
	}

	var b strings.Builder
	b.WriteString("# ROLE: Elite Synthetic Data Generator for AI Coding Agents\n\n")
	b.WriteString("You are generating training data for a Router model that maps user queries to structured tool calls.\n\n")
	fmt.Fprintf(&b, "## TASK\nGenerate %d diverse, realistic training examples.\n\n", batchSize)
	b.WriteString("## CONTEXT\n")
	fmt.Fprintf(&b, "- Domain: %s\n", task.Domain)
	fmt.Fprintf(&b, "- Persona: %s\n", task.Persona)
	fmt.Fprintf(&b, "- Target Tool: %s\n", target)
	fmt.Fprintf(&b, "- Intent: %s\n", task.Intent.Desc)
	fmt.Fprintf(&b, "- Query Style: %s (%s)\n\n", task.Style.Name, task.Style.Desc)

	b.WriteString("## LOGIC & CONSISTENCY RULES\n")
	b.WriteString(toolLogic(schema.ToolName(toolName)))
	b.WriteString("\n")

	if len(task.Style.Examples) > 0 {
		b.WriteString("## STYLE GUIDE\nPhrase every user_query in this style. Reference examples:\n")
		for _, ex := range task.Style.Examples {
			fmt.Fprintf(&b, "- %q\n", ex)
		}
		b.WriteString("\n")
	}

	if toolName != "" {
		b.WriteString("## THOUGHT QUALITY\n")
		b.WriteString("Every thought must be a single line of at least 8 words explaining what you are doing, " +
			"why this tool fits, and how it answers the request. Never restate the query verbatim.\n" +
			"Formula: \"I need to [ACTION] because [REASON], so I'll [TOOL] to [OUTCOME].\"\n\n")
	}

	b.WriteString("## OUTPUT FORMAT\n")
	fmt.Fprintf(&b, "Return ONE JSON object: {\"items\": [...]} with exactly %d items shaped as:\n", batchSize)
	b.WriteString(schemaConstraints(schema.ToolName(toolName), task.Intent.Tool == ""))
	b.WriteString("\n## FINAL NEGATIVE CONSTRAINTS\n")
	b.WriteString("1. DO NOT generate null values. Omit optional fields you do not need.\n")
	b.WriteString("2. DO NOT wrap the JSON in markdown fences.\n")
	fmt.Fprintf(&b, "\nGENERATE %d EXAMPLES NOW:\n", batchSize)
	return b.String()
}

func toolLogic(tool schema.ToolName) string {
	switch tool {
	case schema.ToolCodebaseSearch:
		return `CODEBASE SEARCH: discovery and exploration.
Use when the user does not know the file path, hunts for patterns or concepts, or explores unfamiliar code.
Mode selection: "exact" only when the query names a specific symbol (class User, authenticate(), CONFIG_KEY);
"semantic" for concepts ("how does auth work"); "hybrid" for mixed queries.
Include file_pattern ONLY when the user mentions scope ("in tests", "*.config files"); otherwise omit it.
Anti-patterns: a query with a full path belongs to file_manager; a query with code to run belongs to sandbox_exec.`
	case schema.ToolFileManager:
		return `FILE MANAGER: direct file operations (list, read, write, patch).
The user query MUST contain the file path verbatim; invent realistic paths and embed them naturally
("Read the config in src/settings.json", "Update line 45 in backend/auth/handler.py").
Arguments per operation: list/read need only path; write needs path + content;
patch needs path + target_string + replacement_string (which must differ).
Anti-patterns: vague queries with no path belong to codebase_search.`
	case schema.ToolSandboxExec:
		return `SANDBOX EXEC: run code to test, validate, reproduce or benchmark.
code must be valid, runnable Python using print() for output; keep it focused.
timeout defaults to 30; change only when the query mentions a time constraint.
Anti-patterns: modifying the codebase belongs to file_manager; locating code belongs to codebase_search.`
	case schema.ToolAskHuman:
		return `ASK HUMAN: escalation and clarification.
Escalate dangerous operations (drop tables, delete data), ambiguous requests, missing business rules,
and production actions requiring approval.
The user query is the TRIGGER (vague or dangerous); the agent's question asks for the specific
clarification, with optional context explaining why.`
	default:
		return `DIRECT ANSWER: conceptual questions, explanations of errors and concepts, best-practice advice.
status is "complete" with a final_answer of 2-5 sentences; no thought, no tool_use.
Anti-patterns: anything needing code inspection, file changes or execution routes to a tool instead.`
	}
}

func schemaConstraints(tool schema.ToolName, direct bool) string {
	if direct {
		return `{"user_query": "conceptual question", "output": {"status": "complete", "final_answer": "2-5 sentence response"}}`
	}
	args := ""
	switch tool {
	case schema.ToolCodebaseSearch:
		args = `{"query": "search term", "mode": "exact|semantic|hybrid", "file_pattern": "glob (optional)"}`
	case schema.ToolFileManager:
		args = `{"operation": "list|read|write|patch", "path": "relative path from the query", "content": "(write only)", "target_string": "(patch only)", "replacement_string": "(patch only)"}`
	case schema.ToolSandboxExec:
		args = `{"code": "valid Python", "timeout": 30}`
	case schema.ToolAskHuman:
		args = `{"question": "specific clarification", "context": "why you ask (optional)"}`
	}
	return fmt.Sprintf(`{"user_query": "...", "output": {"status": "running", "thought": "single line, 8+ words", "tool_use": {"%s": %q, "arguments": %s}}}`,
		schema.Discriminator, string(tool), args)
}
