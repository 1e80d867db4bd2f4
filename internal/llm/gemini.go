package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-pro"

// GeminiProvider calls Google Gemini through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini provider. baseURL overrides the API
// endpoint and is empty in production.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return fmt.Sprintf("gemini:%s", p.model)
}

// Generate sends a prompt to Gemini and returns the first candidate's text.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.3),
		MaxOutputTokens: int32(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Text(), nil
}
