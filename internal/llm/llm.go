// Package llm adapts hosted language models to the pipeline's text
// generation interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/aperture/internal/config"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Generator completes a prompt with a single model call.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Model names the model behind the generator, for logs.
	Model() string
}

// New builds the generator for cfg.Provider.
func New(ctx context.Context, cfg config.LLM) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderGemini:
		return NewGeminiGenerator(ctx, cfg)
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func callTimeout(cfg config.LLM) time.Duration {
	if cfg.Timeout <= 0 {
		return 2 * time.Minute
	}
	return cfg.Timeout
}
