package update

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const releaseURL = "https://api.github.com/repos/AbbuRehan-SD/news-summarizer/releases/latest"

const defaultTimeout = 5 * time.Second

// Result holds the outcome of a version check.
type Result struct {
	LatestVersion string
}

type ghRelease struct {
	TagName string `json:"tag_name"`
}

// Check queries the GitHub Releases API through hc to see if a newer version
// is available. A nil hc uses a client with a short timeout. Returns nil on
// any error (non-fatal).
func Check(ctx context.Context, hc *http.Client, currentVersion string) *Result {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return check(ctx, hc, releaseURL, currentVersion)
}

func check(ctx context.Context, hc *http.Client, endpoint, currentVersion string) *Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := hc.Do(req)
	if err != nil {
		slog.DebugContext(ctx, "release check failed", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.DebugContext(ctx, "release check failed", "status", resp.StatusCode)
		return nil
	}

	var release ghRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	current := strings.TrimPrefix(currentVersion, "v")

	if latest == "" || !newer(latest, current) {
		return nil
	}

	return &Result{LatestVersion: latest}
}

// newer reports whether latest is a higher dotted version than current.
// Versions that don't parse, like "dev", compare as different-is-newer.
func newer(latest, current string) bool {
	l, okL := parseVersion(latest)
	c, okC := parseVersion(current)
	if !okL || !okC {
		return latest != current
	}
	for i := range max(len(l), len(c)) {
		var a, b int
		if i < len(l) {
			a = l[i]
		}
		if i < len(c) {
			b = c[i]
		}
		if a != b {
			return a > b
		}
	}
	return false
}

func parseVersion(v string) ([]int, bool) {
	if v == "" {
		return nil, false
	}
	// Pre-release and build suffixes are ignored.
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
