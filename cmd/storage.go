package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AbbuRehan-SD/news-summarizer/internal/cache"
	"github.com/AbbuRehan-SD/news-summarizer/internal/config"
)

func withStore(cmd *cobra.Command, fn func(cfg *config.Config, store *cache.Store) error) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store, err := openStore(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired entries from the cache",
	Long: `Delete cached entries older than the one-hour TTL and reclaim space.

Entries imported from the legacy file cache without a timestamp never expire and are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(cfg *config.Config, store *cache.Store) error {
			deleted, err := store.Prune(cmd.Context())
			if err != nil {
				return fmt.Errorf("pruning: %w", err)
			}

			out := cmd.OutOrStdout()
			if deleted == 0 {
				fmt.Fprintln(out, "Nothing to prune.")
			} else {
				fmt.Fprintf(out, "Pruned %d expired entr%s.\n", deleted, plural(deleted, "y", "ies"))
			}
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(cfg *config.Config, store *cache.Store) error {
			st, err := store.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache: %s\n", cacheLocation(cfg))
			fmt.Fprintf(out, "Entries: %d (%d expired, %d legacy)\n", st.Entries, st.Expired, st.Legacy)
			fmt.Fprintf(out, "Size: %s\n", formatBytes(st.Size))
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import a legacy file cache directory",
	Long: `Load <md5>.json cache files written by the legacy file-based cache.

Timestamped records keep their write time; bare article lists are imported as
legacy entries that never expire.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(cfg *config.Config, store *cache.Store) error {
			imported, skipped, err := store.Import(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("importing: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entr%s, skipped %d.\n", imported, plural(int64(imported), "y", "ies"), skipped)
			return nil
		})
	},
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
