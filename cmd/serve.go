package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AbbuRehan-SD/news-summarizer/internal/browser"
	"github.com/AbbuRehan-SD/news-summarizer/internal/server"
)

var (
	flagServeAddr string
	flagServeOpen bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the news views and favorites export over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.cfg.Listen
		if flagServeAddr != "" {
			addr = flagServeAddr
		}

		if flagServeOpen || a.cfg.OpenBrowser {
			go func() {
				if err := browser.OpenAfter(ctx, browserURL(addr), time.Second); err != nil && ctx.Err() == nil {
					slog.Warn("opening browser", "error", err)
				}
			}()
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s\n", browserURL(addr))
		return server.New(a.agg, slog.Default()).Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&flagServeOpen, "open", false, "open the browser once the server is up")
}

// browserURL turns a listen address into a URL a local browser can open.
func browserURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}
