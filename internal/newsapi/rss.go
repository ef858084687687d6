package newsapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
	"github.com/mmcdole/gofeed"
)

// FeedClient serves queries from an RSS search endpoint shaped like Google
// News: <base>/search?q=<term> for searches and <base> for headlines. Feeds
// are not paginated, so pages are cut from the item list.
type FeedClient struct {
	parser  *gofeed.Parser
	baseURL string
}

func NewFeedClient(baseURL string, hc *http.Client) *FeedClient {
	p := gofeed.NewParser()
	p.Client = hc
	return &FeedClient{parser: p, baseURL: strings.TrimRight(baseURL, "/")}
}

func (f *FeedClient) URL(q Query) string {
	v := url.Values{}
	if q.Language != "" {
		v.Set("hl", q.Language)
	}
	if q.Kind == TopHeadlines && q.Term == "" {
		if len(v) == 0 {
			return f.baseURL
		}
		return f.baseURL + "?" + v.Encode()
	}
	v.Set("q", q.Term)
	return f.baseURL + "/search?" + v.Encode()
}

func (f *FeedClient) Key(q Query) string {
	return fmt.Sprintf("%s#page=%d&pageSize=%d", f.URL(q), q.Page, q.PageSize)
}

func (f *FeedClient) Fetch(ctx context.Context, q Query) ([]news.Raw, error) {
	feed, err := f.parser.ParseURLWithContext(f.URL(q), ctx)
	if err != nil {
		var he gofeed.HTTPError
		if errors.As(err, &he) {
			return nil, &StatusError{Code: he.StatusCode, Body: he.Status}
		}
		return nil, fmt.Errorf("fetching feed: %w", err)
	}

	items := page(feed.Items, q.Page, q.PageSize)
	raws := make([]news.Raw, 0, len(items))
	for _, item := range items {
		raws = append(raws, news.Raw{
			Title:       item.Title,
			URL:         item.Link,
			Source:      itemSource(feed, item),
			Image:       itemImage(item),
			PublishedAt: itemPublished(item),
			Content:     stripHTML(item.Content),
			Description: stripHTML(item.Description),
		})
	}
	return raws, nil
}

func page(items []*gofeed.Item, pageNum, size int) []*gofeed.Item {
	if pageNum < 1 {
		pageNum = 1
	}
	if size <= 0 {
		return nil
	}
	start := (pageNum - 1) * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func itemSource(feed *gofeed.Feed, item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	return feed.Title
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func itemPublished(item *gofeed.Item) string {
	t := item.PublishedParsed
	if t == nil {
		t = item.UpdatedParsed
	}
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
