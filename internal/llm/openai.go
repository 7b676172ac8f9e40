package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries uint64
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (Groq, OpenAI, OpenRouter).
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: 35 * time.Second},
		maxRetries: cfg.MaxRetries,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 4 * time.Second
	return b
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	if p.apiKey == "" {
		return "", errors.New("missing API key for remote provider")
	}
	if p.model == "" {
		return "", errors.New("missing model for remote provider")
	}
	payload := map[string]any{
		"model":    p.model,
		"messages": messages,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var content string
	attempt := func() error {
		result, err := p.complete(ctx, body)
		if err != nil {
			return err
		}
		content = result
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), p.maxRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return "", err
	}
	return content, nil
}

// complete performs a single request. Rate limiting and server errors are
// returned as retryable; everything else is permanent.
func (p *OpenAIProvider) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", fmt.Errorf("LLM request failed: %s", resp.Status)
	}
	if resp.StatusCode >= 400 {
		return "", backoff.Permanent(fmt.Errorf("LLM request failed: %s", resp.Status))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", backoff.Permanent(err)
	}
	if len(parsed.Choices) == 0 {
		return "", backoff.Permanent(errors.New("LLM response had no choices"))
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", backoff.Permanent(errors.New("LLM response was empty"))
	}
	return content, nil
}
