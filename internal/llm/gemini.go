package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/dvloznov/aperture/internal/config"
)

// GeminiGenerator calls the Gemini API through the Gen AI SDK.
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	config  *genai.GenerateContentConfig
	timeout time.Duration
}

// NewGeminiGenerator creates a Gen AI client for the Gemini API backend.
func NewGeminiGenerator(ctx context.Context, cfg config.LLM) (*GeminiGenerator, error) {
	return newGeminiGenerator(ctx, cfg, genai.HTTPOptions{APIVersion: "v1"})
}

func newGeminiGenerator(ctx context.Context, cfg config.LLM, httpOptions genai.HTTPOptions) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.GoogleAPIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: httpOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
	if cfg.MaxOutputTokens > 0 {
		genConfig.MaxOutputTokens = int32(cfg.MaxOutputTokens)
	}

	return &GeminiGenerator{
		client:  client,
		model:   cfg.GeminiModel,
		config:  genConfig,
		timeout: callTimeout(cfg),
	}, nil
}

func (g *GeminiGenerator) Model() string { return g.model }

func (g *GeminiGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
