package cmd

import (
	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/output"
)

func newProvidersCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured search providers",
		Long: `List the providers that have credentials configured. With --check,
each provider's health endpoint is probed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := output.New(cmd.OutOrStdout())

			ids := a.engine.Providers()
			if len(ids) == 0 {
				out.Warning("no providers configured; set GITHUB_TOKEN or SRC_ACCESS_TOKEN/SRC_ENDPOINT")
				return nil
			}

			var health map[string]bool
			if check {
				health = a.engine.ValidateProviders(cmd.Context())
			}

			for _, id := range ids {
				p, ok := a.registry.Get(id)
				if !ok {
					continue
				}
				caps := p.Capabilities()

				line := id
				if caps.SupportsRegex {
					line += "  [regex]"
				}
				if !check {
					out.Println(line)
					continue
				}
				if health[id] {
					out.Success(line)
				} else {
					out.Errorf("%s (health check failed)", line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Probe each provider's health endpoint")

	return cmd
}
