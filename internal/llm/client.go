package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderNone      = "none"
)

var (
	ErrNoProvider      = errors.New("llm: no provider configured")
	ErrEmptyCompletion = errors.New("llm: provider returned no text")
)

// Client completes a single prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// Options selects and configures a provider.
type Options struct {
	Provider     string
	Model        string
	APIKey       string
	BaseURL      string
	MaxTokens    int64
	SystemPrompt string
}

// New creates the client for opts.Provider.
func New(opts Options) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case ProviderAnthropic:
		return NewAnthropicClient(opts)
	case ProviderOpenAI:
		return NewOpenAIClient(opts)
	case ProviderGoogle:
		return NewGoogleClient(context.Background(), opts)
	case "", ProviderNone:
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", opts.Provider)
	}
}

func requireKey(provider, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%s client requires an API key", provider)
	}
	return key, nil
}

func modelOrDefault(model, def string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return def
}

func nonEmpty(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
