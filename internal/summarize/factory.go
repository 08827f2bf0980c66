package summarize

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Options selects and configures a provider.
type Options struct {
	Provider string // openai, gemini
	APIKey   string
	Model    string
	BaseURL  string // OpenAI-compatible base URL; ignored for gemini
	Timeout  time.Duration
}

// New returns the Summarizer for opts.Provider.
func New(ctx context.Context, opts Options, logger *zap.Logger) (Summarizer, error) {
	switch opts.Provider {
	case "openai", "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  opts.APIKey,
			BaseURL: opts.BaseURL,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		}, logger), nil
	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:  opts.APIKey,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", opts.Provider)
	}
}
