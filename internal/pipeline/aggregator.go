package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
	"github.com/AbbuRehan-SD/news-summarizer/internal/newsapi"
)

const (
	firstPageSize = 10
	nextPageSize  = 5
	queryPageSize = 10
)

// Regional describes the multi-keyword digest.
type Regional struct {
	Label      string
	Keywords   []string
	PerKeyword int
}

// Aggregator builds the three article views. It never fails; the worst case
// is an empty list.
type Aggregator struct {
	exec     *Executor
	regional Regional
	language string
}

func NewAggregator(exec *Executor, regional Regional, language string) *Aggregator {
	if regional.PerKeyword <= 0 {
		regional.PerKeyword = nextPageSize
	}
	return &Aggregator{exec: exec, regional: regional, language: language}
}

// Label names the regional digest, e.g. "India".
func (a *Aggregator) Label() string {
	return a.regional.Label
}

// Regional fans out one query per keyword and merges the results in keyword
// order, dropping repeated URLs. Page 1 holds 10 articles, later pages 5.
func (a *Aggregator) Regional(ctx context.Context, page int) []news.Article {
	page = clampPage(page)
	size := nextPageSize
	if page == 1 {
		size = firstPageSize
	}

	results := make([][]news.Article, len(a.regional.Keywords))
	var g errgroup.Group
	g.SetLimit(a.exec.opts.workers)
	for i, kw := range a.regional.Keywords {
		g.Go(func() error {
			q := newsapi.Query{
				Kind:     newsapi.Everything,
				Term:     kw,
				Language: a.language,
				Page:     page,
				PageSize: a.regional.PerKeyword,
			}
			results[i] = a.exec.Execute(ctx, q, a.regional.PerKeyword)
			return nil
		})
	}
	_ = g.Wait()

	var all []news.Article
	for _, r := range results {
		all = append(all, r...)
	}
	return news.Head(news.Dedup(all), size)
}

// Headlines returns one page of top headlines.
func (a *Aggregator) Headlines(ctx context.Context, page int) []news.Article {
	q := newsapi.Query{
		Kind:     newsapi.TopHeadlines,
		Language: a.language,
		Page:     clampPage(page),
		PageSize: queryPageSize,
	}
	return news.Dedup(a.exec.Execute(ctx, q, queryPageSize))
}

// Search returns one page of articles matching term.
func (a *Aggregator) Search(ctx context.Context, term string, page int) []news.Article {
	q := newsapi.Query{
		Kind:     newsapi.Everything,
		Term:     term,
		Language: a.language,
		Page:     clampPage(page),
		PageSize: queryPageSize,
	}
	return news.Dedup(a.exec.Execute(ctx, q, queryPageSize))
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
