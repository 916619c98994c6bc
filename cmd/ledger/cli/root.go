// Package cli implements the ledger command line.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/app"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Double-entry ledger service for school finance",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newSeedCommand())
	rootCmd.AddCommand(newJobsCommand())

	return rootCmd
}

// loadRuntime reads configuration and builds the process logger.
func loadRuntime() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
