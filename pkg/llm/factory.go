package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/config"
)

// NewCompleter builds the configured completion backend wrapped in a circuit breaker.
func NewCompleter(cfg config.LLMConfig, logger *zap.Logger) (Completer, error) {
	var (
		c   Completer
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c, err = NewOpenAIClient(&OpenAIConfig{
			Endpoint:  cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		}, logger)
	case config.ProviderAnthropic:
		baseURL := cfg.BaseURL
		if baseURL == defaultOllamaURL {
			baseURL = ""
		}
		c, err = NewAnthropicClient(&AnthropicConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURL,
			MaxTokens: cfg.MaxTokens,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s completer: %w", cfg.Provider, err)
	}
	return WithCircuitBreaker(c, NewCircuitBreaker(DefaultCircuitBreakerConfig())), nil
}

// defaultOllamaURL is the llm.base_url default; it is meaningless for Anthropic.
const defaultOllamaURL = "http://localhost:11434/v1"

// NewEmbedder builds the OpenAI-compatible embedding client.
func NewEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (*OpenAIClient, error) {
	c, err := NewOpenAIClient(&OpenAIConfig{
		Endpoint: cfg.BaseURL,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return c, nil
}
