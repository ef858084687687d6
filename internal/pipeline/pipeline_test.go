package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/AbbuRehan-SD/news-summarizer/internal/cache"
	"github.com/AbbuRehan-SD/news-summarizer/internal/config"
	"github.com/AbbuRehan-SD/news-summarizer/internal/enrich"
	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
	"github.com/AbbuRehan-SD/news-summarizer/internal/newsapi"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	queries []newsapi.Query
	fetch   func(q newsapi.Query) ([]news.Raw, error)
}

func (p *fakeProvider) Key(q newsapi.Query) string {
	return fmt.Sprintf("%d|%s|%s|%d|%d", q.Kind, q.Term, q.Language, q.Page, q.PageSize)
}

func (p *fakeProvider) Fetch(_ context.Context, q newsapi.Query) ([]news.Raw, error) {
	p.mu.Lock()
	p.calls++
	p.queries = append(p.queries, q)
	p.mu.Unlock()
	return p.fetch(q)
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeEnricher struct {
	sentiment string
}

func (f fakeEnricher) Summarize(_ context.Context, text string) string {
	return "sum:" + text
}

func (f fakeEnricher) Sentiment(_ context.Context, text string) string {
	return f.sentiment
}

func testStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), cache.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func raws(prefix string, n int) []news.Raw {
	out := make([]news.Raw, n)
	for i := range out {
		out[i] = news.Raw{
			Title:   fmt.Sprintf("%s %d", prefix, i),
			URL:     fmt.Sprintf("https://example.com/%s/%d", prefix, i),
			Source:  "Example",
			Content: fmt.Sprintf("%s body %d", prefix, i),
		}
	}
	return out
}

func newTestExecutor(t *testing.T, p *fakeProvider, e Enricher) *Executor {
	t.Helper()
	return NewExecutor(p, e, testStore(t), WithClock(func() time.Time { return testNow }))
}

func TestExecuteEndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "India" || r.URL.Query().Get("page") != "1" {
			t.Errorf("unexpected upstream request %s", r.URL)
		}
		w.Write([]byte(`{"status":"ok","articles":[
			{"source":{"name":"A"},"title":"First","url":"https://a.com/1","publishedAt":"2026-03-10T11:30:00Z","content":"C1"},
			{"source":{"name":"B"},"title":"Second","url":"https://b.com/2","publishedAt":"2026-03-10T09:00:00Z","content":"C2"}
		]}`))
	}))
	defer upstream.Close()

	replies := map[string]string{
		"/sum:C1":  `[{"summary_text":"S1"}]`,
		"/sum:C2":  `[{"summary_text":"S2"}]`,
		"/sent:S1": `[{"label":"POSITIVE"}]`,
		"/sent:S2": `[{"label":"NEGATIVE"}]`,
	}
	inference := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs string `json:"inputs"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		body, ok := replies[r.URL.Path+":"+req.Inputs]
		if !ok {
			t.Errorf("unexpected inference call %s %q", r.URL.Path, req.Inputs)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(body))
	}))
	defer inference.Close()

	store := testStore(t)
	provider := newsapi.NewClient(upstream.URL, "key", upstream.Client())
	enricher := enrich.New(&config.InferenceConfig{
		BaseURL:            inference.URL,
		SummarizationModel: "sum",
		SentimentModel:     "sent",
	}, "", store, enrich.WithHTTPClient(inference.Client()))
	exec := NewExecutor(provider, enricher, store, WithClock(func() time.Time { return testNow }))

	q := newsapi.Query{Kind: newsapi.Everything, Term: "India", Page: 1, PageSize: 10}
	got := exec.Execute(context.Background(), q, 10)

	want := []news.Article{
		{Title: "First", Summary: "S1", Sentiment: "POSITIVE", URL: "https://a.com/1", Source: "A", PublishedAt: "30 min ago"},
		{Title: "Second", Summary: "S2", Sentiment: "NEGATIVE", URL: "https://b.com/2", Source: "B", PublishedAt: "3 hrs ago"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d articles, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("article %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	cached, ok := cache.Load[[]news.Article](context.Background(), store, provider.Key(q))
	if !ok || len(cached) != 2 || cached[0] != want[0] || cached[1] != want[1] {
		t.Errorf("expected both articles cached under the query key, got %+v (hit=%v)", cached, ok)
	}
}

func TestExecuteCachesFullList(t *testing.T) {
	p := &fakeProvider{fetch: func(newsapi.Query) ([]news.Raw, error) { return raws("a", 5), nil }}
	exec := newTestExecutor(t, p, fakeEnricher{sentiment: "POSITIVE"})
	ctx := context.Background()
	q := newsapi.Query{Kind: newsapi.Everything, Term: "x", Page: 1, PageSize: 5}

	if got := exec.Execute(ctx, q, 2); len(got) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(got))
	}
	got := exec.Execute(ctx, q, 10)
	if len(got) != 5 {
		t.Errorf("expected the full cached list of 5, got %d", len(got))
	}
	if p.Calls() != 1 {
		t.Errorf("expected 1 upstream fetch, got %d", p.Calls())
	}
}

func TestExecuteContentFallback(t *testing.T) {
	p := &fakeProvider{fetch: func(newsapi.Query) ([]news.Raw, error) {
		return []news.Raw{
			{Title: "content", URL: "https://x/1", Content: "body"},
			{Title: "description", URL: "https://x/2", Description: "desc"},
			{Title: "empty", URL: "https://x/3"},
		}, nil
	}}
	exec := newTestExecutor(t, p, fakeEnricher{sentiment: "POSITIVE"})

	got := exec.Execute(context.Background(), newsapi.Query{Term: "x", Page: 1, PageSize: 10}, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 articles, got %+v", got)
	}
	if got[0].Summary != "sum:body" || got[1].Summary != "sum:desc" {
		t.Errorf("unexpected summaries %q, %q", got[0].Summary, got[1].Summary)
	}
}

func TestExecuteGracefulDegradation(t *testing.T) {
	p := &fakeProvider{fetch: func(newsapi.Query) ([]news.Raw, error) { return raws("a", 1), nil }}
	exec := newTestExecutor(t, p, fakeEnricher{sentiment: ""})

	got := exec.Execute(context.Background(), newsapi.Query{Term: "x", Page: 1, PageSize: 10}, 10)
	if len(got) != 1 {
		t.Fatalf("expected the article to survive, got %+v", got)
	}
	if got[0].Sentiment != "" || got[0].Title == "" || got[0].URL == "" {
		t.Errorf("unexpected degraded article %+v", got[0])
	}
	b, _ := json.Marshal(got[0])
	if strings.Contains(string(b), "sentiment") {
		t.Errorf("absent sentiment should be omitted, got %s", b)
	}
}

func TestExecuteUpstreamFailureIsEmpty(t *testing.T) {
	p := &fakeProvider{fetch: func(newsapi.Query) ([]news.Raw, error) {
		return nil, &newsapi.StatusError{Code: 500, Body: "boom"}
	}}
	exec := newTestExecutor(t, p, fakeEnricher{})
	ctx := context.Background()
	q := newsapi.Query{Term: "x", Page: 1, PageSize: 10}

	if got := exec.Execute(ctx, q, 10); len(got) != 0 {
		t.Errorf("expected no articles, got %+v", got)
	}
	// Failures are not cached: the next call tries again.
	exec.Execute(ctx, q, 10)
	if p.Calls() != 2 {
		t.Errorf("expected 2 fetches, got %d", p.Calls())
	}
}

func TestExecuteEmptyCachedListIsMiss(t *testing.T) {
	p := &fakeProvider{fetch: func(newsapi.Query) ([]news.Raw, error) { return raws("a", 2), nil }}
	exec := newTestExecutor(t, p, fakeEnricher{})
	ctx := context.Background()
	q := newsapi.Query{Term: "x", Page: 1, PageSize: 10}

	if err := exec.store.Put(ctx, p.Key(q), []news.Article{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := exec.Execute(ctx, q, 10); len(got) != 2 {
		t.Errorf("expected a fresh fetch, got %+v", got)
	}
	if p.Calls() != 1 {
		t.Errorf("expected 1 fetch, got %d", p.Calls())
	}
}

func TestExecuteSharesInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p := &fakeProvider{fetch: func(newsapi.Query) ([]news.Raw, error) {
		once.Do(func() { close(started) })
		<-release
		return raws("a", 3), nil
	}}
	exec := newTestExecutor(t, p, fakeEnricher{})
	ctx := context.Background()
	q := newsapi.Query{Term: "x", Page: 1, PageSize: 10}

	results := make(chan int, 2)
	go func() { results <- len(exec.Execute(ctx, q, 10)) }()
	<-started
	go func() { results <- len(exec.Execute(ctx, q, 10)) }()
	close(release)

	for i := 0; i < 2; i++ {
		if n := <-results; n != 3 {
			t.Errorf("expected 3 articles, got %d", n)
		}
	}
	if p.Calls() != 1 {
		t.Errorf("expected concurrent callers to share one fetch, got %d", p.Calls())
	}
}

// ctxEnricher degrades like the real client once its context is done.
type ctxEnricher struct{}

func (ctxEnricher) Summarize(ctx context.Context, text string) string {
	if ctx.Err() != nil {
		return news.SummaryUnavailable
	}
	return "sum:" + text
}

func (ctxEnricher) Sentiment(ctx context.Context, text string) string {
	if ctx.Err() != nil {
		return ""
	}
	return "POSITIVE"
}

func TestExecuteSharedFetchSurvivesCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p := &fakeProvider{fetch: func(newsapi.Query) ([]news.Raw, error) {
		once.Do(func() { close(started) })
		<-release
		return raws("a", 2), nil
	}}
	exec := newTestExecutor(t, p, ctxEnricher{})
	q := newsapi.Query{Term: "x", Page: 1, PageSize: 10}

	ctxA, cancelA := context.WithCancel(context.Background())
	doneA := make(chan []news.Article, 1)
	go func() { doneA <- exec.Execute(ctxA, q, 10) }()
	<-started

	doneB := make(chan []news.Article, 1)
	go func() { doneB <- exec.Execute(context.Background(), q, 10) }()

	cancelA()
	if got := <-doneA; len(got) != 0 {
		t.Errorf("canceled caller should get no articles, got %+v", got)
	}

	// Give the second caller time to join the flight before it completes.
	time.Sleep(20 * time.Millisecond)
	close(release)

	got := <-doneB
	if len(got) != 2 {
		t.Fatalf("expected 2 articles, got %+v", got)
	}
	for _, a := range got {
		if a.Summary == news.SummaryUnavailable || a.Sentiment != "POSITIVE" {
			t.Errorf("live caller got a degraded article %+v", a)
		}
	}
	if p.Calls() != 1 {
		t.Errorf("expected one shared fetch, got %d", p.Calls())
	}

	// The finished build was cached with full results.
	cached := exec.Execute(context.Background(), q, 10)
	if len(cached) != 2 || cached[0].Summary != "sum:a body 0" {
		t.Errorf("unexpected cached result %+v", cached)
	}
}

func TestExecuteBuildTimeout(t *testing.T) {
	p := &fakeProvider{fetch: func(newsapi.Query) ([]news.Raw, error) { return raws("a", 1), nil }}
	exec := NewExecutor(p, ctxEnricher{}, testStore(t),
		WithClock(func() time.Time { return testNow }),
		WithBuildTimeout(time.Nanosecond),
	)

	got := exec.Execute(context.Background(), newsapi.Query{Term: "x", Page: 1, PageSize: 10}, 10)
	if len(got) != 1 || got[0].Summary != news.SummaryUnavailable {
		t.Errorf("expected enrichment cut off by the build deadline, got %+v", got)
	}
}

func TestExecuteResultIsACopy(t *testing.T) {
	p := &fakeProvider{fetch: func(newsapi.Query) ([]news.Raw, error) { return raws("a", 2), nil }}
	exec := newTestExecutor(t, p, fakeEnricher{})
	ctx := context.Background()
	q := newsapi.Query{Term: "x", Page: 1, PageSize: 10}

	first := exec.Execute(ctx, q, 10)
	first[0].Title = "mutated"
	if got := exec.Execute(ctx, q, 10); got[0].Title == "mutated" {
		t.Error("callers must not share the backing array")
	}
}

func regionalProvider(perTerm map[string][]news.Raw) *fakeProvider {
	return &fakeProvider{fetch: func(q newsapi.Query) ([]news.Raw, error) {
		r, ok := perTerm[q.Term]
		if !ok {
			return nil, errors.New("unknown term")
		}
		return r, nil
	}}
}

func TestRegionalDedupKeepsFirstOccurrence(t *testing.T) {
	a := news.Raw{Title: "A", URL: "https://x/1", Content: "a"}
	b := news.Raw{Title: "B", URL: "https://x/2", Content: "b"}
	c := news.Raw{Title: "C", URL: "https://x/1", Content: "c"}
	p := regionalProvider(map[string][]news.Raw{
		"K1": {a},
		"K2": {b, c},
	})
	exec := newTestExecutor(t, p, fakeEnricher{})
	agg := NewAggregator(exec, Regional{Label: "Test", Keywords: []string{"K1", "K2"}, PerKeyword: 5}, "en")

	got := agg.Regional(context.Background(), 1)
	if len(got) != 2 || got[0].Title != "A" || got[1].Title != "B" {
		t.Errorf("expected [A B], got %+v", got)
	}
}

func TestRegionalPageSizes(t *testing.T) {
	perTerm := map[string][]news.Raw{}
	var keywords []string
	for i := 0; i < 4; i++ {
		kw := fmt.Sprintf("K%d", i)
		keywords = append(keywords, kw)
		perTerm[kw] = raws(kw, 5)
	}

	// K0 finishes last on page 1, after every other keyword has fetched.
	othersDone := make(chan struct{})
	var others atomic.Int32
	p := &fakeProvider{fetch: func(q newsapi.Query) ([]news.Raw, error) {
		if q.Page == 1 {
			if q.Term == "K0" {
				<-othersDone
			} else if others.Add(1) == 3 {
				close(othersDone)
			}
		}
		return perTerm[q.Term], nil
	}}
	exec := NewExecutor(p, fakeEnricher{}, testStore(t),
		WithClock(func() time.Time { return testNow }),
		WithWorkers(len(keywords)),
	)
	agg := NewAggregator(exec, Regional{Keywords: keywords, PerKeyword: 5}, "en")
	ctx := context.Background()

	page1 := agg.Regional(ctx, 1)
	if len(page1) != 10 {
		t.Fatalf("expected 10 articles on page 1, got %d", len(page1))
	}
	// Keyword order survives K0 completing last.
	if page1[0].Title != "K0 0" || page1[5].Title != "K1 0" {
		t.Errorf("unexpected ordering: %q, %q", page1[0].Title, page1[5].Title)
	}
	if got := agg.Regional(ctx, 2); len(got) != 5 {
		t.Errorf("expected 5 articles on page 2, got %d", len(got))
	}

	for _, q := range p.queries {
		if q.Kind != newsapi.Everything || q.PageSize != 5 || q.Language != "en" {
			t.Errorf("unexpected keyword query %+v", q)
		}
	}
}

func TestRegionalClampsPage(t *testing.T) {
	p := regionalProvider(map[string][]news.Raw{"K": raws("K", 5)})
	exec := newTestExecutor(t, p, fakeEnricher{})
	agg := NewAggregator(exec, Regional{Keywords: []string{"K"}}, "en")

	agg.Regional(context.Background(), 0)
	if p.queries[0].Page != 1 {
		t.Errorf("expected page clamped to 1, got %d", p.queries[0].Page)
	}
	if p.queries[0].PageSize != 5 {
		t.Errorf("expected default per-keyword size 5, got %d", p.queries[0].PageSize)
	}
}

func TestHeadlinesAndSearch(t *testing.T) {
	p := &fakeProvider{fetch: func(newsapi.Query) ([]news.Raw, error) { return raws("h", 12), nil }}
	exec := newTestExecutor(t, p, fakeEnricher{})
	agg := NewAggregator(exec, Regional{}, "en")
	ctx := context.Background()

	if got := agg.Headlines(ctx, 2); len(got) != 10 {
		t.Errorf("expected 10 headlines, got %d", len(got))
	}
	if got := agg.Search(ctx, "Pune", 1); len(got) != 10 {
		t.Errorf("expected 10 search results, got %d", len(got))
	}

	if len(p.queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(p.queries))
	}
	if q := p.queries[0]; q.Kind != newsapi.TopHeadlines || q.Page != 2 || q.PageSize != 10 {
		t.Errorf("unexpected headlines query %+v", q)
	}
	if q := p.queries[1]; q.Kind != newsapi.Everything || q.Term != "Pune" || q.PageSize != 10 {
		t.Errorf("unexpected search query %+v", q)
	}
}
