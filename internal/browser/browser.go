package browser

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"time"
)

// start launches a command without waiting for it.
var start = func(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

func Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open URL with scheme %q (only http/https allowed)", u.Scheme)
	}

	switch runtime.GOOS {
	case "darwin":
		return start("open", rawURL)
	case "windows":
		// rundll32 avoids shell interpretation of the URL.
		return start("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		return start("xdg-open", rawURL)
	}
}

// OpenAfter opens rawURL once delay has passed, giving a server started
// alongside it time to listen. It returns early with ctx's error if ctx is
// done first.
func OpenAfter(ctx context.Context, rawURL string, delay time.Duration) error {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return Open(rawURL)
	}
}
