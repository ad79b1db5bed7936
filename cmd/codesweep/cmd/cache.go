package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/output"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the response cache",
	}

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheClearCmd())

	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry count, size, and age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.cache.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(stats)
			}

			oldest := ""
			if stats.OldestEntry != nil {
				oldest = stats.OldestEntry.UTC().Format(time.RFC3339)
			}
			out.CacheStats(int(stats.EntryCount), stats.ApproximateSizeBytes, oldest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")

	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var pattern string
	var expiredOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached responses",
		Long: `Remove cached responses. Without flags, everything is removed.
With --pattern, only entries whose key contains the substring are removed.
With --expired, only entries past their TTL are swept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := output.New(cmd.OutOrStdout())

			var removed int64
			if expiredOnly {
				removed, err = a.cache.ClearExpired(cmd.Context())
			} else {
				removed, err = a.cache.Clear(cmd.Context(), pattern)
			}
			if err != nil {
				return err
			}

			out.Successf("removed %d cache entries", removed)
			return nil
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "", "Only clear keys containing this substring")
	cmd.Flags().BoolVar(&expiredOnly, "expired", false, "Only clear entries past their TTL")
	cmd.MarkFlagsMutuallyExclusive("pattern", "expired")

	return cmd
}
