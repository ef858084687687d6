// Package news holds the canonical Article entity and the pure functions that
// build and combine Article values.
package news

import (
	"fmt"
	"time"
)

// Sentinel summaries used when enrichment does not produce text.
const (
	SummaryError       = "Summary error"
	SummaryUnavailable = "Summary unavailable"
)

// Article is an enriched upstream article. URL is its identity.
type Article struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Sentiment   string `json:"sentiment,omitempty"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	Image       string `json:"image,omitempty"`
	PublishedAt string `json:"published_at"`
}

// Raw is one article as returned by an upstream provider, before enrichment.
type Raw struct {
	Title       string
	URL         string
	Source      string
	Image       string
	PublishedAt string
	Content     string
	Description string
}

// Text returns the text used for enrichment: the content when present,
// otherwise the description. Empty means the article is not usable.
func (r Raw) Text() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Description
}

// Normalize builds an Article from a raw record and its enrichment results.
func Normalize(raw Raw, summary, sentiment string, now time.Time) Article {
	return Article{
		Title:       raw.Title,
		Summary:     summary,
		Sentiment:   sentiment,
		URL:         raw.URL,
		Source:      raw.Source,
		Image:       raw.Image,
		PublishedAt: RelativeTime(raw.PublishedAt, now),
	}
}

const timestampLayout = "2006-01-02T15:04:05Z"

// RelativeTime formats an upstream ISO-8601 timestamp relative to now. Input
// that is not exactly YYYY-MM-DDTHH:MM:SSZ yields "".
func RelativeTime(ts string, now time.Time) string {
	if len(ts) != len(timestampLayout) {
		return ""
	}
	t, err := time.Parse(timestampLayout, ts)
	if err != nil {
		return ""
	}

	seconds := now.Sub(t).Seconds()
	switch {
	case seconds < 60:
		return "Just now"
	case seconds < 3600:
		return fmt.Sprintf("%d min ago", int(seconds/60))
	case seconds < 86400:
		return fmt.Sprintf("%d hrs ago", int(seconds/3600))
	default:
		return t.Format("02 Jan 2006")
	}
}

// Dedup drops articles whose URL was already seen, keeping the first
// occurrence and the original order.
func Dedup(articles []Article) []Article {
	seen := make(map[string]bool, len(articles))
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		out = append(out, a)
	}
	return out
}

// Head returns at most the first n articles.
func Head(articles []Article, n int) []Article {
	if n < 0 {
		n = 0
	}
	if len(articles) > n {
		return articles[:n]
	}
	return articles
}
