package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AbbuRehan-SD/news-summarizer/internal/config"
	"github.com/AbbuRehan-SD/news-summarizer/internal/tui"
)

func runTUI(cmd *cobra.Command, args []string) error {
	logFile, err := openLogFile(config.LogPath())
	if err != nil {
		return err
	}
	defer logFile.Close()
	slog.SetDefault(newLogger(logFile, flagVerbose))

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(tui.RunOpts{Source: a.agg})
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
