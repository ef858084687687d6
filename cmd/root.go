package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/AbbuRehan-SD/news-summarizer/internal/config"
	"github.com/AbbuRehan-SD/news-summarizer/internal/update"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig       string
	flagVerbose      bool
	flagVersionCheck bool
)

var rootCmd = &cobra.Command{
	Use:   "news-summarizer",
	Short: "Summarized, sentiment-tagged news in your terminal",
	Long: `news-summarizer fetches news articles, summarizes them and tags their sentiment
with a hosted inference API, and caches the results locally.

Run without a subcommand to browse in the terminal, or use "serve" for the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), flagVerbose))
	},
	RunE: runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	versionCmd.Flags().BoolVar(&flagVersionCheck, "check", false, "check GitHub for a newer release")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(importCmd)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "news-summarizer %s (commit: %s, built: %s)\n", version, commit, date)
		if !flagVersionCheck {
			return
		}
		if res := update.Check(context.Background(), updateClient(), version); res != nil {
			fmt.Fprintf(out, "Update available: v%s\n", res.LatestVersion)
		} else {
			fmt.Fprintln(out, "You are on the latest version.")
		}
	},
}

// updateClient uses the configured request timeout, or the default one when
// the config can't be loaded.
func updateClient() *http.Client {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		slog.Debug("using default timeout for release check", "error", err)
		cfg = &config.Config{}
	}
	return &http.Client{Timeout: cfg.Timeout()}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
