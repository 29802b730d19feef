package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/llm/compat"
	"github.com/joseph-ayodele/doc-extractor/internal/llm/gemini"
	"github.com/joseph-ayodele/doc-extractor/internal/llm/openai"
)

// Providers lists the accepted values of llm.provider.
var Providers = []string{"openai", "compat", "gemini", "ollama"}

// NewBackend builds the backend named by cfg.Provider. The returned close func
// is never nil.
func NewBackend(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (Backend, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Provider {
	case "", "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger), noop, nil
	case "compat":
		return compat.NewClient(compat.Config{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger), noop, nil
	case "gemini":
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, logger)
		if err != nil {
			return nil, noop, common.NewAppError(common.KindConfig, "could not create gemini client", err)
		}
		return c, c.Close, nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger), noop, nil
	default:
		return nil, noop, common.NewAppError(common.KindConfig, fmt.Sprintf("unknown llm.provider %q", cfg.Provider), nil)
	}
}
