package llm

import (
	"context"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

const defaultGoogleModel = "gemini-2.5-flash"

// GoogleClient completes prompts with the Gemini API.
type GoogleClient struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGoogleClient creates a Google GenAI client for the configured model.
func NewGoogleClient(ctx context.Context, opts Options) (*GoogleClient, error) {
	key, err := requireKey("google", opts.APIKey)
	if err != nil {
		return nil, err
	}

	cc := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google GenAI client: %w", err)
	}

	gc := &genai.GenerateContentConfig{}
	if sys := strings.TrimSpace(opts.SystemPrompt); sys != "" {
		gc.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	if opts.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(opts.MaxTokens)
	}

	return &GoogleClient{
		client: client,
		model:  strings.TrimPrefix(modelOrDefault(opts.Model, defaultGoogleModel), "models/"),
		config: gc,
	}, nil
}

func (c *GoogleClient) ModelName() string {
	return c.model
}

func (c *GoogleClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.config)
	if err != nil {
		return "", fmt.Errorf("google genai completion failed: %w", err)
	}
	return nonEmpty(resp.Text())
}
