package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/output"
)

func newMetricsCmd() *cobra.Command {
	var lookback time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show per-provider latency and cache statistics",
		Long: `Show request counts, error counts, latency percentiles (p50, p95,
p99) and cache hit rate per provider over a lookback window.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.sink.Stats(cmd.Context(), lookback)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(stats)
			}
			out.ProviderStats(stats)
			return nil
		},
	}

	cmd.Flags().DurationVar(&lookback, "lookback", time.Hour, "Stats window (e.g. 30m, 24h)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")

	return cmd
}
