package llm

import (
	"context"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole reports whether role is one a conversation may carry.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

type Config struct {
	Provider         string
	Model            string
	BaseURL          string
	GroqAPIKey       string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	MaxRetries       uint64
}

const (
	defaultGroqBaseURL       = "https://api.groq.com/openai/v1"
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "groq", "":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.GroqAPIKey,
			Model:      cfg.Model,
			BaseURL:    defaultIfEmpty(cfg.BaseURL, defaultGroqBaseURL),
			MaxRetries: cfg.MaxRetries,
		}), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case "openrouter":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.OpenRouterAPIKey,
			Model:      cfg.Model,
			BaseURL:    defaultIfEmpty(cfg.BaseURL, defaultOpenRouterBaseURL),
			MaxRetries: cfg.MaxRetries,
		}), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}

type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported LLM provider: %s", e.Provider)
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
