package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the Model Context Protocol server, exposing federated code
search as tools for AI clients.

Stdout carries the protocol stream exclusively; all logging goes to
the log file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport)
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "stdio", "Transport: stdio")

	return cmd
}

func runServe(ctx context.Context, transport string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := mcp.NewServer(a.engine, a.cache, a.sink, a.cfg)
	if err != nil {
		return err
	}

	return server.Serve(ctx, transport)
}
