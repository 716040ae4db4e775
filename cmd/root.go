// Package cmd defines and implements the CLI commands for the comparador executable.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/config"
	"github.com/pmprecos/comparador/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

// NewRootCmd creates and configures the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comparador",
		Short: "Compares feed prices against competitor storefronts",
		Long: `comparador reads a merchant product feed, searches each product by
manufacturer reference across the configured storefronts, validates that
every match really is the same part, and writes a side-by-side price
workbook. Outcomes are cached on disk so repeated runs stay cheap.`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./comparador.yaml via defaults)")

	cmd.AddCommand(newCompareCmd())
	cmd.AddCommand(newCacheCmd())
	return cmd
}
