package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type call struct {
	mode string
	term string
	page int
}

type fakeSource struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeSource) record(mode, term string, page int) []news.Article {
	f.mu.Lock()
	f.calls = append(f.calls, call{mode, term, page})
	f.mu.Unlock()
	if mode == "headlines" {
		return nil
	}
	return []news.Article{{Title: mode, URL: "https://example.com/" + mode, Summary: "S"}}
}

func (f *fakeSource) Label() string { return "India" }
func (f *fakeSource) Regional(_ context.Context, page int) []news.Article {
	return f.record("regional", "", page)
}
func (f *fakeSource) Headlines(_ context.Context, page int) []news.Article {
	return f.record("headlines", "", page)
}
func (f *fakeSource) Search(_ context.Context, term string, page int) []news.Article {
	return f.record("search", term, page)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRootRedirects(t *testing.T) {
	s := New(&fakeSource{}, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/", "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/india" {
		t.Errorf("expected redirect to /india, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		target       string
		wantCall     call
		wantCategory string
		wantQuery    string
		wantCount    int
	}{
		{"/india", call{"regional", "", 1}, "India", "", 1},
		{"/india?page=3", call{"regional", "", 3}, "India", "", 1},
		{"/world?page=2", call{"headlines", "", 2}, "World", "", 0},
		{"/world?query=Pune", call{"search", "Pune", 1}, "World", "Pune", 1},
		{"/search?q=Chennai&page=2", call{"search", "Chennai", 2}, "Search", "Chennai", 1},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			src := &fakeSource{}
			rec := do(t, New(src, nil).Handler(), http.MethodGet, tt.target, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}

			var resp pageResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if len(src.calls) != 1 || src.calls[0] != tt.wantCall {
				t.Errorf("calls = %+v, want %+v", src.calls, tt.wantCall)
			}
			if resp.Category != tt.wantCategory || resp.Query != tt.wantQuery || resp.Page != tt.wantCall.page {
				t.Errorf("unexpected response %+v", resp)
			}
			if len(resp.Articles) != tt.wantCount {
				t.Errorf("expected %d articles, got %d", tt.wantCount, len(resp.Articles))
			}
		})
	}
}

func TestEmptyResultIsJSONList(t *testing.T) {
	rec := do(t, New(&fakeSource{}, nil).Handler(), http.MethodGet, "/world", "")
	if !strings.Contains(rec.Body.String(), `"articles":[]`) {
		t.Errorf("expected an empty list, got %s", rec.Body)
	}
}

func TestBadPage(t *testing.T) {
	src := &fakeSource{}
	rec := do(t, New(src, nil).Handler(), http.MethodGet, "/india?page=two", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if len(src.calls) != 0 {
		t.Errorf("expected no aggregation for a bad page, got %+v", src.calls)
	}
}

func TestExportCSV(t *testing.T) {
	body := `[{"title":"T1","summary":"S1","source":"A","url":"https://a/1","sentiment":"POSITIVE"}]`
	rec := do(t, New(&fakeSource{}, nil).Handler(), http.MethodPost, "/export/favorites/csv", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "favorites.csv") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("unexpected Content-Type %q", ct)
	}

	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("reading CSV: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "T1" || rows[1][3] != "https://a/1" {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestExportXLSX(t *testing.T) {
	body := `[{"title":"T1","summary":"S1","source":"A","url":"https://a/1"}]`
	rec := do(t, New(&fakeSource{}, nil).Handler(), http.MethodPost, "/export/favorites/xlsx", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "favorites.xlsx") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	// XLSX is a zip archive.
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("expected a zip payload")
	}
}

func TestExportPDF(t *testing.T) {
	body := `[{"title":"T1","summary":"S1","source":"A","url":"https://a/1"}]`
	rec := do(t, New(&fakeSource{}, nil).Handler(), http.MethodPost, "/export/favorites/pdf", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "favorites.pdf") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("unexpected Content-Type %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF-") {
		t.Error("expected a PDF payload")
	}
}

func TestExportWithoutFavorites(t *testing.T) {
	for _, body := range []string{"", "null", "[]", "{}"} {
		for _, format := range []string{"csv", "xlsx", "pdf"} {
			rec := do(t, New(&fakeSource{}, nil).Handler(), http.MethodPost, "/export/favorites/"+format, body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s with body %q: expected 400, got %d", format, body, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "No favorites provided") {
				t.Errorf("%s with body %q: unexpected error body %s", format, body, rec.Body)
			}
		}
	}
}

func TestExportMalformedBody(t *testing.T) {
	rec := do(t, New(&fakeSource{}, nil).Handler(), http.MethodPost, "/export/favorites/csv", `{"title":1`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(&fakeSource{}, nil).Run(ctx, "127.0.0.1:0") }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}
