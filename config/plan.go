package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan is the generation plan: what to generate and with which
// backends. It is injected configuration, loaded from YAML, never
// hardcoded into the pipeline.
type Plan struct {
	Domains     []string      `yaml:"domains"`
	Personas    []string      `yaml:"personas"`
	QueryStyles []QueryStyle  `yaml:"query_styles"`
	Intents     []Intent      `yaml:"intents"`
	Backends    []BackendSpec `yaml:"backends"`
}

// QueryStyle shapes how the simulated user phrases a request.
type QueryStyle struct {
	Name     string   `yaml:"name"`
	Desc     string   `yaml:"desc"`
	Examples []string `yaml:"examples"`
}

// Intent is one bucket of the target distribution.
type Intent struct {
	Name string `yaml:"name"`
	// Tool is the variant this intent routes to; empty means a direct
	// answer (status complete).
	Tool   string  `yaml:"tool"`
	Weight float64 `yaml:"weight"`
	Desc   string  `yaml:"desc"`
	// Reasoning marks intents that want logic-strong backends.
	Reasoning bool `yaml:"reasoning"`
}

// BackendSpec names one pool member.
type BackendSpec struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Weight      float64 `yaml:"weight"`
	LogicStrong bool    `yaml:"logic_strong"`
}

// LoadPlan reads and validates a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return &plan, nil
}

// Validate checks the plan's internal consistency.
func (p *Plan) Validate() error {
	if len(p.Domains) == 0 {
		return fmt.Errorf("no domains")
	}
	if len(p.Personas) == 0 {
		return fmt.Errorf("no personas")
	}
	if len(p.Intents) == 0 {
		return fmt.Errorf("no intents")
	}
	total := 0.0
	seen := map[string]bool{}
	for _, intent := range p.Intents {
		if intent.Name == "" {
			return fmt.Errorf("intent with empty name")
		}
		if seen[intent.Name] {
			return fmt.Errorf("duplicate intent %q", intent.Name)
		}
		seen[intent.Name] = true
		if intent.Weight <= 0 {
			return fmt.Errorf("intent %q has non-positive weight", intent.Name)
		}
		total += intent.Weight
	}
	if total <= 0 {
		return fmt.Errorf("intent weights sum to zero")
	}
	if len(p.Backends) == 0 {
		return fmt.Errorf("no backends")
	}
	for i, b := range p.Backends {
		if b.Provider == "" {
			return fmt.Errorf("backend %d has no provider", i)
		}
	}
	return nil
}

// DefaultPlan returns the stock plan used when no plan file is given.
func DefaultPlan() *Plan {
	return &Plan{
		Domains: []string{
			"E-Commerce API", "Video Game Engine", "Crypto Trading Bot",
			"Machine Learning Pipeline", "Legacy Banking System", "Healthcare EMR",
			"IoT Fleet Management", "Real-Time Analytics", "Embedded Robotics",
			"Social Media Recommender", "Cloud Cost Optimizer", "SaaS Billing System",
			"Customer Support Chatbot", "Cybersecurity SIEM", "Fraud Detection System",
			"Supply Chain Logistics Platform", "Streaming Media CDN", "EdTech Learning Platform",
		},
		Personas: []string{
			"Junior Intern (Vague, nervous, uses simple language)",
			"Senior Engineer (Technical, precise, mentions specific patterns/frameworks)",
			"Product Manager (Functional description, no code details, business-focused)",
			"Security Auditor (Paranoid, looking for vulnerabilities, mentions CVEs)",
			"DevOps Engineer (Focused on config and deployment, mentions infrastructure)",
			"QA Tester (Edge cases, reproduction steps, bug reports with stack traces)",
			"SRE (Latency concerns, dashboards, SLIs/SLOs, outages)",
			"Data Scientist (Stats-heavy, unclear about infra, mentions metrics)",
			"Tech Lead (High-level, architectural decisions, mentions trade-offs)",
			"DBA (Schema changes, migrations, indexing, query optimization)",
			"Performance Engineer (Profiling, optimization, bottlenecks, memory leaks)",
			"Night Shift Operator (Incident response, limited resources, production issues)",
		},
		QueryStyles: []QueryStyle{
			{Name: "direct", Desc: "Straightforward command or statement",
				Examples: []string{"Find the auth handler", "Search for User class"}},
			{Name: "question", Desc: "Phrased as an interrogative",
				Examples: []string{"Where is the auth handler?", "How does caching work?"}},
			{Name: "problem", Desc: "Describes an issue or blocker",
				Examples: []string{"I can't find the auth handler", "The tests are failing"}},
			{Name: "context", Desc: "Provides background before the request",
				Examples: []string{"We're refactoring auth, need to find the handler"}},
			{Name: "urgent", Desc: "Time-sensitive with pressure indicators",
				Examples: []string{"ASAP: find auth handler", "Need this NOW for deploy"}},
			{Name: "confused", Desc: "Uncertain, seeking guidance",
				Examples: []string{"Not sure where auth stuff is...", "I think it's in utils?"}},
			{Name: "fragmented", Desc: "Incomplete thoughts, stream of consciousness",
				Examples: []string{"auth handler... somewhere in backend? maybe utils..."}},
			{Name: "code_mixed", Desc: "Natural language mixed with code snippets",
				Examples: []string{"Find where we call authenticate() with the user param"}},
			{Name: "error_dump", Desc: "Pastes stack trace or error log",
				Examples: []string{"Getting: TypeError: cannot read property 'user' of undefined at auth.js:45"}},
			{Name: "file_path_present", Desc: "Explicitly mentions file path",
				Examples: []string{"Read src/auth.py", "Update config/settings.json"}},
			{Name: "minimal", Desc: "One or two words, ultra terse",
				Examples: []string{"auth handler", "config?"}},
			{Name: "verbose", Desc: "Overly detailed, 10x longer than needed",
				Examples: []string{"I would like to respectfully request a comprehensive search of the entire codebase..."}},
		},
		Intents: []Intent{
			{Name: "search", Tool: "codebase_search", Weight: 0.35,
				Desc: "Look up functions, trace where logic lives, inspect configs, explore unfamiliar modules, locate error messages, or map data flows."},
			{Name: "compute", Tool: "sandbox_exec", Weight: 0.24, Reasoning: true,
				Desc: "Evaluate code snippets, validate algorithms, reproduce bugs, verify regex patterns, benchmark performance, or simulate edge cases."},
			{Name: "modify", Tool: "file_manager", Weight: 0.18, Reasoning: true,
				Desc: "Apply small fixes, adjust configuration values, update constants, add logging, rename variables, or implement minor features."},
			{Name: "escalate", Tool: "ask_human", Weight: 0.08, Reasoning: true,
				Desc: "Requests blocked by missing context, unclear business rules, security-sensitive actions, or operations requiring human approval."},
			{Name: "answer", Tool: "", Weight: 0.15,
				Desc: "Provide explanations, clarify concepts, explain error messages, suggest approaches, discuss trade-offs, or offer best practices."},
		},
		Backends: []BackendSpec{
			{Provider: "groq", Model: "llama-3.3-70b-versatile", Weight: 1.5, LogicStrong: true},
			{Provider: "groq", Model: "llama-3.1-8b-instant", Weight: 1},
			{Provider: "gemini", Model: "gemini-2.0-flash", Weight: 1},
		},
	}
}
