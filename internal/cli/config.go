package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/monet/internal/logger"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Config resolves defaults, configuration files and MONET_* environment
overrides the way run does and prints the result with credentials redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.loadConfig(cmd)

			fmt.Fprintln(cmd.OutOrStdout(), logger.NewRedactor().Redact(cfg.String()))

			if err := cfg.Validate(); err != nil {
				return err
			}
			return nil
		},
	}
}
