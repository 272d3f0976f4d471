package remote

import (
	"fmt"
	"log/slog"

	"github.com/mmcdole/lectio/internal/config"
	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/remote/postgrest"
	"github.com/mmcdole/lectio/internal/remote/sqlite"
)

// New builds the remote tier from configuration. An unconfigured remote yields
// Disabled, not an error. The returned close func releases backend resources.
func New(cfg *config.Config, logger *slog.Logger) (domain.RemoteStore, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return nil, noop, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Remote.IsConfigured() {
		logger.Info("remote store not configured, running without it")
		return Disabled{}, noop, nil
	}

	opts := Options{Timeout: cfg.Remote.Timeout, Retries: cfg.Remote.Retries}

	switch cfg.Remote.Type {
	case config.RemoteTypePostgREST:
		backend := postgrest.NewClient(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Locale, logger)
		return NewClient(backend, opts, logger), noop, nil

	case config.RemoteTypeSQLite:
		backend, err := sqlite.Open(cfg.Remote.Dataset, cfg.Locale, logger)
		if err != nil {
			return nil, noop, err
		}
		return NewClient(backend, opts, logger), backend.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown remote type: %s", cfg.Remote.Type)
	}
}
