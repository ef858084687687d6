// Package pipeline turns upstream queries into enriched, cached article
// lists and combines them into the regional, headline and search views.
package pipeline

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AbbuRehan-SD/news-summarizer/internal/cache"
	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
	"github.com/AbbuRehan-SD/news-summarizer/internal/newsapi"
)

// Enricher produces a summary and a sentiment label for a piece of text.
// Both calls degrade to sentinel values instead of failing.
type Enricher interface {
	Summarize(ctx context.Context, text string) string
	Sentiment(ctx context.Context, text string) string
}

type Option func(*options)

type options struct {
	logger       *slog.Logger
	clock        func() time.Time
	workers      int
	buildTimeout time.Duration
}

const defaultBuildTimeout = 2 * time.Minute

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the time source for relative publish times.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithWorkers bounds how many articles are enriched, or keywords fetched,
// at once.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithBuildTimeout bounds one fetch and enrichment of a query key. The build
// outlives the caller that started it, so this is its only deadline.
func WithBuildTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.buildTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), clock: time.Now, workers: 4, buildTimeout: defaultBuildTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Executor runs one upstream query through cache, fetch, enrichment and
// store.
type Executor struct {
	provider newsapi.Provider
	enricher Enricher
	store    *cache.Store
	opts     options

	// flights makes the fetch+store for a query key appear atomic to
	// concurrent callers of the same key.
	flights singleflight.Group
}

func NewExecutor(provider newsapi.Provider, enricher Enricher, store *cache.Store, opts ...Option) *Executor {
	return &Executor{
		provider: provider,
		enricher: enricher,
		store:    store,
		opts:     buildOptions(opts),
	}
}

// Execute returns at most pageSize articles for q. The full enriched list is
// cached under the query key so a later call with a larger pageSize can reuse
// it. Upstream failures yield an empty result, as does ctx ending before the
// result is ready.
//
// The build for a key is shared by every caller of that key and runs detached
// from their contexts, so one caller giving up never degrades the articles
// the others receive.
func (e *Executor) Execute(ctx context.Context, q newsapi.Query, pageSize int) []news.Article {
	key := e.provider.Key(q)
	if cached, ok := e.lookup(ctx, key); ok {
		return slices.Clone(news.Head(cached, pageSize))
	}

	ch := e.flights.DoChan(key, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.buildTimeout)
		defer cancel()

		// A caller that finished the same key while we waited has stored it.
		if cached, ok := e.lookup(buildCtx, key); ok {
			return cached, nil
		}
		return e.build(buildCtx, q, key), nil
	})

	select {
	case <-ctx.Done():
		e.opts.logger.DebugContext(ctx, "caller left in-flight query", "key", key, "error", ctx.Err())
		return nil
	case res := <-ch:
		if res.Shared {
			e.opts.logger.DebugContext(ctx, "shared in-flight query", "key", key)
		}
		articles, _ := res.Val.([]news.Article)
		return slices.Clone(news.Head(articles, pageSize))
	}
}

// lookup treats an empty cached list as a miss.
func (e *Executor) lookup(ctx context.Context, key string) ([]news.Article, bool) {
	cached, ok := cache.Load[[]news.Article](ctx, e.store, key)
	if !ok || len(cached) == 0 {
		return nil, false
	}
	return cached, true
}

func (e *Executor) build(ctx context.Context, q newsapi.Query, key string) []news.Article {
	raws, err := e.provider.Fetch(ctx, q)
	if err != nil {
		e.opts.logger.WarnContext(ctx, "upstream fetch failed", "key", key, "error", err)
		return nil
	}

	usable := make([]news.Raw, 0, len(raws))
	for _, raw := range raws {
		if raw.Text() != "" {
			usable = append(usable, raw)
		}
	}

	now := e.opts.clock()
	articles := make([]news.Article, len(usable))
	var g errgroup.Group
	g.SetLimit(e.opts.workers)
	for i, raw := range usable {
		g.Go(func() error {
			summary := e.enricher.Summarize(ctx, raw.Text())
			// Sentiment is taken over the summary, not the article text.
			sentiment := e.enricher.Sentiment(ctx, summary)
			articles[i] = news.Normalize(raw, summary, sentiment, now)
			return nil
		})
	}
	_ = g.Wait()

	if err := e.store.Put(ctx, key, articles); err != nil {
		e.opts.logger.WarnContext(ctx, "caching query result", "key", key, "error", err)
	}
	e.opts.logger.DebugContext(ctx, "query built", "key", key, "fetched", len(raws), "kept", len(articles))
	return articles
}
