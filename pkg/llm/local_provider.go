package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/plugincraft/forge/internal/config"
)

// localProvider targets any Ollama/LocalAI-compatible endpoint, used as
// forge's default offline-friendly provider.
type localProvider struct {
	model *ollama.LLM
}

func newLocalProvider(cfg config.LLMConfig) (*localProvider, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.Endpoint != "" {
		opts = append(opts, ollama.WithServerURL(cfg.Endpoint))
	}
	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("build ollama client: %w", err)
	}
	return &localProvider{model: model}, nil
}

func (p *localProvider) Complete(ctx context.Context, model string, temperature float32, maxTokens int, prompt string) (string, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt,
		llms.WithTemperature(float64(temperature)),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", translateLocalError(err)
	}
	return text, nil
}

func translateLocalError(err error) error {
	if isRateLimited(err) {
		return fmt.Errorf("%w: %s", ErrRateLimited, err.Error())
	}
	return err
}
