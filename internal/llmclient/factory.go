package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/config"
)

// NewClient is a factory that creates a TextGenerator for the configured
// provider, wrapped with the shared rate limit and in-flight cap.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.TextGenerator, error) {
	var (
		client schemas.TextGenerator
		err    error
	)

	switch cfg.Provider {
	case config.ProviderGroq:
		client, err = NewGroqClient(cfg, logger)
	case config.ProviderGemini:
		client, err = NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGroq, config.ProviderGemini)
	}
	if err != nil {
		return nil, err
	}

	return NewThrottled(client, cfg, logger), nil
}
