// Package app wires configuration, the tiers and the domain services into one
// process-wide graph.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmcdole/lectio/internal/config"
	"github.com/mmcdole/lectio/internal/connectivity"
	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/events"
	"github.com/mmcdole/lectio/internal/generative"
	"github.com/mmcdole/lectio/internal/log"
	"github.com/mmcdole/lectio/internal/offline"
	"github.com/mmcdole/lectio/internal/progress"
	"github.com/mmcdole/lectio/internal/remote"
	"github.com/mmcdole/lectio/internal/resolver"
	"github.com/mmcdole/lectio/internal/search"
	"github.com/mmcdole/lectio/internal/store"
)

// Options override configuration for one process.
type Options struct {
	ConfigPath string
	Locale     string // overrides config when set
	Offline    bool   // never attempt a network tier
	Logger     *slog.Logger
}

// App holds every long-lived component.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Events       *events.Broadcaster[events.ContentChanged]
	Cache        *store.Store
	Remote       domain.RemoteStore
	Generator    domain.Generator
	Connectivity domain.Connectivity

	Scripture  *resolver.Scripture
	Paragraphs *resolver.Paragraphs
	Documents  *resolver.Documents
	Tracks     *resolver.Tracks
	Progress   *progress.Service
	Offline    *offline.Tools
	Search     *search.Service

	closers []func() error
}

// New loads configuration and builds the graph. Tiers that are not
// configured are replaced by their disabled forms; only a broken config or a
// remote that cannot be opened is an error.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Locale != "" {
		cfg.Locale = opts.Locale
	}

	logger := opts.Logger
	closeLog := func() error { return nil }
	if logger == nil {
		logger, closeLog, err = log.Setup(&cfg.Logging, "app", "lectio", "locale", cfg.Locale)
		if err != nil {
			// Fall back to null logger if file logging fails
			logger, closeLog = log.NullLogger(), func() error { return nil }
		}
	}
	a, err := Build(ctx, cfg, opts.Offline, logger)
	if err != nil {
		closeLog()
		return nil, err
	}
	// Closed last, after every component that logs.
	a.closers = append([]func() error{closeLog}, a.closers...)
	return a, nil
}

// Build wires the graph from an already loaded configuration.
func Build(ctx context.Context, cfg *config.Config, forceOffline bool, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config: cfg,
		Logger: logger,
		Events: &events.Broadcaster[events.ContentChanged]{},
	}

	a.Cache = store.New(cfg.Store.CacheDir(), cfg.Remote.Namespace(), logger)
	// A store that cannot open degrades to an empty cache; Init logs why.
	_ = a.Cache.Init(ctx)
	a.closers = append(a.closers, a.Cache.Close)

	rs, closeRemote, err := remote.New(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Remote = rs
	a.closers = append(a.closers, closeRemote)

	gen, err := generative.New(ctx, cfg.Generative, logger)
	if err != nil {
		logger.Warn("generative fallback unavailable", "error", err)
		gen = generative.Disabled{}
	}
	a.Generator = gen

	a.Connectivity = a.newConnectivity(ctx, forceOffline)

	deps := resolver.Deps{
		Cache:        a.Cache,
		Remote:       a.Remote,
		Generator:    a.Generator,
		Connectivity: a.Connectivity,
		Events:       a.Events,
		Locale:       cfg.Locale,
		Logger:       logger,
	}
	a.Scripture = resolver.NewScripture(deps)
	a.Paragraphs = resolver.NewParagraphs(deps)
	a.Documents = resolver.NewDocuments(deps)
	a.Tracks = resolver.NewTracks(deps)

	a.Progress = progress.NewService(a.Cache, a.Remote, a.Connectivity, a.Events, logger)
	a.Offline = offline.New(a.Scripture, a.Cache, cfg.Locale, 0, logger)
	a.Search = search.NewService(a.Cache, cfg.Locale, logger)

	// Progress stops before the monitor so no flush starts during shutdown.
	a.closers = append(a.closers, a.Progress.Close)

	logger.Info("app ready",
		"locale", cfg.Locale,
		"remote", cfg.Remote.IsConfigured(),
		"generative", cfg.Generative.IsConfigured(),
		"offline", forceOffline,
	)
	return a, nil
}

func (a *App) newConnectivity(ctx context.Context, forceOffline bool) domain.Connectivity {
	if forceOffline {
		return connectivity.Static{Online: false}
	}
	c := a.Config.Connectivity
	var prober connectivity.Prober
	if c.ProbeURL != "" {
		prober = connectivity.NewHTTPProber(c.ProbeURL, c.ProbeTimeout)
	}
	m := connectivity.NewMonitor(prober, connectivity.Options{
		Heartbeat:    c.HeartbeatInterval,
		Settle:       c.SettleWindow,
		ProbeTimeout: c.ProbeTimeout,
	}, a.Logger)
	m.Start(ctx)
	a.closers = append(a.closers, m.Close)
	return m
}

// Status is a snapshot of the running graph.
type Status struct {
	Connectivity   domain.ConnectivityState
	StoreAvailable bool
	SchemaVersion  int
	Remote         bool
	Generative     bool
	PendingWrites  int
}

// Status reports tier availability without touching the network.
func (a *App) Status(ctx context.Context) Status {
	return Status{
		Connectivity:   a.Connectivity.State(),
		StoreAvailable: a.Cache.Available(ctx),
		SchemaVersion:  a.Cache.SchemaVersion(ctx),
		Remote:         a.Config.Remote.IsConfigured(),
		Generative:     a.Config.Generative.IsConfigured(),
		PendingWrites:  len(a.Progress.Pending(ctx)),
	}
}

// Close releases components in reverse order of construction.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
