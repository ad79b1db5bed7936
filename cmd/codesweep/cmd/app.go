package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/codesweep/codesweep/internal/cache"
	"github.com/codesweep/codesweep/internal/config"
	"github.com/codesweep/codesweep/internal/metrics"
	"github.com/codesweep/codesweep/internal/provider/github"
	"github.com/codesweep/codesweep/internal/provider/sourcegraph"
	"github.com/codesweep/codesweep/internal/search"
	"github.com/codesweep/codesweep/internal/store"
)

// app wires the shared dependencies for one command invocation:
// config, the SQLite store, cache, metrics, providers, and the engine.
type app struct {
	cfg      *config.Config
	store    *store.Store
	cache    *cache.Store
	sink     metrics.Sink
	registry *search.Registry
	engine   *search.Engine
}

// newApp resolves config for the current directory and constructs the
// full dependency graph. Providers without credentials are left out.
func newApp() (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Cache.DBPath
	if dbPath == "" {
		dbPath = store.DefaultPath()
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	cacheStore, err := cache.New(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sink, err := metrics.NewSQLiteSink(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := search.NewRegistry()

	if cfg.GitHubEnabled() {
		gh, err := github.New(github.Config{
			Token:   cfg.Providers.GitHub.Token,
			BaseURL: cfg.Providers.GitHub.BaseURL,
			Timeout: cfg.ProviderTimeout(),
		})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		registry.Register(gh)
	} else {
		slog.Debug("github provider disabled, no token")
	}

	if cfg.SourcegraphEnabled() {
		sg, err := sourcegraph.New(sourcegraph.Config{
			Endpoint: cfg.Providers.Sourcegraph.Endpoint,
			Token:    cfg.Providers.Sourcegraph.Token,
			Timeout:  cfg.ProviderTimeout(),
		})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		registry.Register(sg)
	} else {
		slog.Debug("sourcegraph provider disabled, no endpoint or token")
	}

	opts := []search.EngineOption{search.WithMetrics(sink)}
	if cfg.Cache.HotSize > 0 {
		opts = append(opts, search.WithHotCache(cfg.Cache.HotSize))
	}

	engine, err := search.NewEngine(registry, cacheStore, search.EngineConfig{
		DefaultTTL:   cfg.CacheTTL(),
		DefaultLimit: cfg.Search.DefaultLimit,
	}, opts...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    st,
		cache:    cacheStore,
		sink:     sink,
		registry: registry,
		engine:   engine,
	}, nil
}

// Close releases the shared store.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close store", slog.String("error", err.Error()))
	}
}
