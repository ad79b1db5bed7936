// Package cmd provides the CLI commands for codesweep.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/logging"
	"github.com/codesweep/codesweep/pkg/version"
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the codesweep CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codesweep",
		Short: "Federated code search across GitHub and Sourcegraph",
		Long: `Codesweep runs one logical code search against multiple providers,
merges and deduplicates the results, and re-ranks them by relevance
weighted with repository popularity.

Responses are cached locally, so repeated queries are answered
without touching the providers.

Credentials come from the environment: GITHUB_TOKEN enables the
GitHub provider, SRC_ACCESS_TOKEN and SRC_ENDPOINT enable Sourcegraph.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("codesweep version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.codesweep/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newMetricsCmd())
	cmd.AddCommand(newProvidersCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging sets up file logging; debug mode raises the level.
func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg = logging.DebugConfig()
		cfg.WriteToStderr = false
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// stopLogging flushes and closes the log writer.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
