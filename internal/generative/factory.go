package generative

import (
	"context"
	"log/slog"

	"github.com/mmcdole/lectio/internal/config"
	"github.com/mmcdole/lectio/internal/domain"
)

// New builds the generative tier from configuration. Without an API key the
// tier is Disabled.
func New(ctx context.Context, cfg config.GenerativeConfig, logger *slog.Logger) (domain.Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.IsConfigured() {
		logger.Info("generative fallback not configured, running without it")
		return Disabled{}, nil
	}
	model, err := NewGenAIModel(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return NewService(model, Options{Timeout: cfg.Timeout, Retries: cfg.Retries}, logger), nil
}
