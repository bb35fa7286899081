package llm

import "testing"

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		input string
		want  ProviderType
	}{
		{"groq", ProviderGroq},
		{"GROQ", ProviderGroq},
		{"openai", ProviderOpenAI},
		{"gpt", ProviderOpenAI},
		{"anthropic", ProviderAnthropic},
		{"claude", ProviderAnthropic},
		{"gemini", ProviderGemini},
		{"google", ProviderGemini},
	}
	for _, tt := range tests {
		got, err := ParseProviderType(tt.input)
		if err != nil {
			t.Errorf("ParseProviderType(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := ParseProviderType("mistral"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestProviderTypeEnvVar(t *testing.T) {
	if got := ProviderGroq.EnvVar(); got != "GROQ_API_KEY" {
		t.Errorf("groq env var = %q", got)
	}
	if got := ProviderGemini.EnvVar(); got != "GEMINI_API_KEY" {
		t.Errorf("gemini env var = %q", got)
	}
}

func TestBuilderAppliesDefaults(t *testing.T) {
	provider, err := NewProviderBuilder(ProviderGroq).APIKey("test-key")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if provider.Name() != "groq" {
		t.Errorf("expected name groq, got %q", provider.Name())
	}
	if provider.Model() != ModelGroqLlama33_70B {
		t.Errorf("expected default model, got %q", provider.Model())
	}
}

func TestBuilderOverridesModel(t *testing.T) {
	provider, err := ProviderGroq.
		Model(ModelGroqLlama31_8B).
		MaxTokens(2048).
		Temperature(0.5).
		APIKey("test-key")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if provider.Model() != ModelGroqLlama31_8B {
		t.Errorf("expected overridden model, got %q", provider.Model())
	}
}

func TestFromEnvRequiresAPIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	if _, err := ProviderGroq.FromEnv(); err == nil {
		t.Fatal("expected error when API key is unset")
	}
}
