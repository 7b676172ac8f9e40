package llm

import (
	"testing"
)

func TestNewProvider_Defaults(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantBaseURL string
		wantKey     string
	}{
		{
			name:        "groq by default",
			cfg:         Config{Model: "llama3-8b-8192", GroqAPIKey: "groq-key"},
			wantBaseURL: "https://api.groq.com/openai/v1",
			wantKey:     "groq-key",
		},
		{
			name:        "openai",
			cfg:         Config{Provider: "openai", Model: "gpt-4o-mini", OpenAIAPIKey: "openai-key"},
			wantBaseURL: "https://api.openai.com/v1",
			wantKey:     "openai-key",
		},
		{
			name:        "openrouter",
			cfg:         Config{Provider: "openrouter", Model: "meta-llama/llama-3-8b-instruct", OpenRouterAPIKey: "or-key"},
			wantBaseURL: "https://openrouter.ai/api/v1",
			wantKey:     "or-key",
		},
		{
			name:        "custom base url wins",
			cfg:         Config{Provider: "groq", Model: "m", GroqAPIKey: "k", BaseURL: "http://localhost:9999/v1/"},
			wantBaseURL: "http://localhost:9999/v1",
			wantKey:     "k",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			openAIProvider, ok := provider.(*OpenAIProvider)
			if !ok {
				t.Fatalf("expected *OpenAIProvider, got %T", provider)
			}
			if openAIProvider.baseURL != tt.wantBaseURL {
				t.Errorf("baseURL = %q, want %q", openAIProvider.baseURL, tt.wantBaseURL)
			}
			if openAIProvider.apiKey != tt.wantKey {
				t.Errorf("apiKey = %q, want %q", openAIProvider.apiKey, tt.wantKey)
			}
		})
	}
}

func TestNewProvider_Unsupported(t *testing.T) {
	_, err := NewProvider(Config{Provider: "unknown-provider"})
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	unsupported, ok := err.(ErrUnsupportedProvider)
	if !ok {
		t.Fatalf("expected ErrUnsupportedProvider, got %T", err)
	}
	if unsupported.Error() != "unsupported LLM provider: unknown-provider" {
		t.Errorf("unexpected error message: %s", unsupported.Error())
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleSystem, RoleUser, RoleAssistant} {
		if !ValidRole(role) {
			t.Errorf("expected %q to be valid", role)
		}
	}
	for _, role := range []string{"", "tool", "User"} {
		if ValidRole(role) {
			t.Errorf("expected %q to be invalid", role)
		}
	}
}
