// Package newsapi fetches raw articles from the upstream search/headlines
// provider.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AbbuRehan-SD/news-summarizer/internal/config"
	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
)

type Kind int

const (
	// Everything searches all articles for Term, newest first.
	Everything Kind = iota
	// TopHeadlines lists current headlines.
	TopHeadlines
)

// Query describes one upstream request.
type Query struct {
	Kind     Kind
	Term     string
	Language string
	Page     int
	PageSize int
}

// Provider fetches raw articles. Key returns the string that identifies the
// query's response in the cache; it must differ whenever the response would.
type Provider interface {
	Key(q Query) string
	Fetch(ctx context.Context, q Query) ([]news.Raw, error)
}

// New returns the provider selected by cfg.
func New(cfg *config.Config, hc *http.Client) (Provider, error) {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	switch cfg.Upstream.Provider {
	case "newsapi":
		return NewClient(cfg.Upstream.BaseURL, cfg.NewsKey(), hc), nil
	case "rss":
		return NewFeedClient(cfg.Upstream.BaseURL, hc), nil
	default:
		return nil, fmt.Errorf("unknown upstream provider: %q (valid: newsapi, rss)", cfg.Upstream.Provider)
	}
}

// StatusError reports a non-200 upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %d: %s", e.Code, e.Body)
}

// Client talks to the NewsAPI v2 JSON API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewClient(baseURL, apiKey string, hc *http.Client) *Client {
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// URL renders the request URL. The API key is sent as a header and is not
// part of the URL.
func (c *Client) URL(q Query) string {
	v := url.Values{}
	endpoint := "/everything"
	switch q.Kind {
	case TopHeadlines:
		endpoint = "/top-headlines"
		if q.Term != "" {
			v.Set("q", q.Term)
		}
	default:
		v.Set("q", q.Term)
		v.Set("sortBy", "publishedAt")
	}
	if q.Language != "" {
		v.Set("language", q.Language)
	}
	v.Set("pageSize", strconv.Itoa(q.PageSize))
	v.Set("page", strconv.Itoa(q.Page))
	return c.baseURL + endpoint + "?" + v.Encode()
}

func (c *Client) Key(q Query) string {
	return c.URL(q)
}

type response struct {
	Status   string        `json:"status"`
	Articles []wireArticle `json:"articles"`
}

type wireArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

func (c *Client) Fetch(ctx context.Context, q Query) ([]news.Raw, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(q), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding newsapi response: %w", err)
	}

	raws := make([]news.Raw, 0, len(r.Articles))
	for _, a := range r.Articles {
		raws = append(raws, news.Raw{
			Title:       a.Title,
			URL:         a.URL,
			Source:      a.Source.Name,
			Image:       a.URLToImage,
			PublishedAt: a.PublishedAt,
			Content:     a.Content,
			Description: a.Description,
		})
	}
	return raws, nil
}
