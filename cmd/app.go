package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AbbuRehan-SD/news-summarizer/internal/cache"
	"github.com/AbbuRehan-SD/news-summarizer/internal/config"
	"github.com/AbbuRehan-SD/news-summarizer/internal/enrich"
	"github.com/AbbuRehan-SD/news-summarizer/internal/newsapi"
	"github.com/AbbuRehan-SD/news-summarizer/internal/pipeline"
)

// app is the wired pipeline shared by the TUI and the HTTP server.
type app struct {
	cfg   *config.Config
	store *cache.Store
	agg   *pipeline.Aggregator
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := slog.Default()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	hc := &http.Client{Timeout: cfg.Timeout()}
	provider, err := newsapi.New(cfg, hc)
	if err != nil {
		store.Close()
		return nil, err
	}
	if cfg.Upstream.Provider == "newsapi" && cfg.NewsKey() == "" {
		logger.Warn("no upstream API key configured (set upstream.api_key or NEWS_API_KEY)")
	}

	enricher := enrich.New(&cfg.Inference, cfg.InferenceKey(), store,
		enrich.WithHTTPClient(hc),
		enrich.WithLogger(logger),
	)
	exec := pipeline.NewExecutor(provider, enricher, store,
		pipeline.WithLogger(logger),
		pipeline.WithWorkers(cfg.GetWorkers()),
		pipeline.WithBuildTimeout(cfg.QueryBudget()),
	)
	agg := pipeline.NewAggregator(exec, pipeline.Regional{
		Label:      cfg.Regional.Label,
		Keywords:   cfg.Regional.Keywords,
		PerKeyword: cfg.PerKeyword(),
	}, cfg.Language)

	return &app{cfg: cfg, store: store, agg: agg}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// openStore opens the configured cache backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		backend, err := cache.OpenRedis(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		return cache.New(backend, cache.WithLogger(logger)), nil
	default:
		store, err := cache.Open(config.CachePath(), cache.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		return store, nil
	}
}

// cacheLocation describes where the configured backend keeps its data.
func cacheLocation(cfg *config.Config) string {
	if cfg.Cache.Backend == "redis" {
		return "redis://" + cfg.Cache.RedisAddr
	}
	return config.CachePath()
}
