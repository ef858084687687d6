// Package enrich calls the text-inference backend for summaries and sentiment
// labels. Results are cached by a prefix of the input text, and failures
// degrade to sentinel values instead of errors.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AbbuRehan-SD/news-summarizer/internal/cache"
	"github.com/AbbuRehan-SD/news-summarizer/internal/config"
	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
)

const (
	maxAttempts         = 3
	defaultLoadingDelay = 3 * time.Second
	keyPrefixLen        = 100
	maxResponseBytes    = 1 << 20
)

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLoadingDelay sets the wait after a "model loading" response.
func WithLoadingDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.loadingDelay = d
		}
	}
}

// Client talks to a Hugging Face style inference API: POST {"inputs": text}
// to <base_url>/<model>.
type Client struct {
	http               *http.Client
	baseURL            string
	summarizationModel string
	sentimentModel     string
	apiKey             string
	store              *cache.Store
	logger             *slog.Logger
	loadingDelay       time.Duration
}

func New(cfg *config.InferenceConfig, apiKey string, store *cache.Store, opts ...Option) *Client {
	c := &Client{
		http:               &http.Client{Timeout: 30 * time.Second},
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		summarizationModel: cfg.SummarizationModel,
		sentimentModel:     cfg.SentimentModel,
		apiKey:             apiKey,
		store:              store,
		logger:             slog.Default(),
		loadingDelay:       defaultLoadingDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Summarize returns a generated summary of text, or news.SummaryError when the
// backend answers with an unreadable body, or news.SummaryUnavailable when no
// attempt succeeds.
func (c *Client) Summarize(ctx context.Context, text string) string {
	o := c.infer(ctx, "summary", c.summarizationModel, text, parseSummary)
	switch {
	case o.ok:
		return o.value
	case errors.Is(o.reason, errMalformed):
		return news.SummaryError
	default:
		return news.SummaryUnavailable
	}
}

// Sentiment returns the top label for text, or "" when none could be obtained.
func (c *Client) Sentiment(ctx context.Context, text string) string {
	o := c.infer(ctx, "sentiment", c.sentimentModel, text, parseSentiment)
	if !o.ok {
		return ""
	}
	return o.value
}

var (
	errMalformed = errors.New("malformed inference response")
	errExhausted = errors.New("inference attempts exhausted")
)

// outcome is the internal result of one enrichment: either a value or the
// reason it degraded.
type outcome struct {
	value  string
	ok     bool
	reason error
}

func succeeded(v string) outcome    { return outcome{value: v, ok: true} }
func degraded(reason error) outcome { return outcome{reason: reason} }

func (c *Client) infer(ctx context.Context, kind, model, text string, parse func([]byte) (string, error)) outcome {
	key := kind + ":" + prefix(text, keyPrefixLen)
	if v, ok := cache.Load[string](ctx, c.store, key); ok && v != "" {
		return succeeded(v)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, body, err := c.post(ctx, model, text)
		if err != nil {
			if ctx.Err() != nil {
				return degraded(ctx.Err())
			}
			c.logger.DebugContext(ctx, "inference request failed", "kind", kind, "attempt", attempt, "error", err)
			continue
		}

		if status == http.StatusOK {
			v, err := parse(body)
			if err != nil {
				c.logger.WarnContext(ctx, "inference response unreadable", "kind", kind, "error", err)
				return degraded(fmt.Errorf("%w: %v", errMalformed, err))
			}
			if err := c.store.Put(ctx, key, v); err != nil {
				c.logger.WarnContext(ctx, "caching inference result", "kind", kind, "error", err)
			}
			return succeeded(v)
		}

		c.logger.DebugContext(ctx, "inference backend not ready", "kind", kind, "attempt", attempt, "status", status)
		if isLoading(body) && attempt < maxAttempts {
			if err := sleep(ctx, c.loadingDelay); err != nil {
				return degraded(err)
			}
		}
	}

	c.logger.WarnContext(ctx, "inference unavailable", "kind", kind, "attempts", maxAttempts)
	return degraded(errExhausted)
}

func (c *Client) post(ctx context.Context, model, text string) (int, []byte, error) {
	body, _ := json.Marshal(map[string]string{"inputs": text})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("inference API error: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading inference response: %w", err)
	}
	return resp.StatusCode, b, nil
}

func isLoading(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), "loading")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// prefix returns the first n characters of s.
func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func parseSummary(body []byte) (string, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return "", err
	}
	return firstString(items, "summary_text")
}

// parseSentiment accepts both [{label}] and the nested [[{label, score}, ...]]
// shape text-classification models return; the first label wins.
func parseSentiment(body []byte) (string, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(body, &items); err == nil {
		return firstString(items, "label")
	}
	var nested [][]map[string]json.RawMessage
	if err := json.Unmarshal(body, &nested); err != nil {
		return "", err
	}
	if len(nested) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return firstString(nested[0], "label")
}

func firstString(items []map[string]json.RawMessage, field string) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("empty response")
	}
	raw, ok := items[0][field]
	if !ok {
		return "", fmt.Errorf("missing %q", field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("decoding %q: %w", field, err)
	}
	return s, nil
}
