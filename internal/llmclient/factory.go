// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/opsmedic/codemedic/api/schemas"
	"github.com/opsmedic/codemedic/internal/config"
)

// NewClient builds the configured backend and, when a request budget is
// set, wraps it in the rate limiter.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	var (
		client schemas.LLMClient
		err    error
	)

	switch cfg.Provider {
	case config.ProviderGemini:
		client, err = NewGeminiClient(cfg, logger)
	case config.ProviderOllama:
		client, err = NewOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q (supported: %s, %s)",
			cfg.Provider, config.ProviderOllama, config.ProviderGemini)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		client = NewRateLimitedClient(client, cfg.RequestsPerMinute, logger)
	}
	return client, nil
}
