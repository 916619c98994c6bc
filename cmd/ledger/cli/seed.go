package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/app"
)

func newSeedCommand() *cobra.Command {
	var institutionID, actor string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Install the default chart of accounts for an institution",
		RunE: func(cmd *cobra.Command, args []string) error {
			if institutionID == "" {
				return errors.New("--institution is required")
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			if cfg.LedgerStore != app.StorePostgres {
				logger.Warn("seeding the memory store has no lasting effect", slog.String("store", cfg.LedgerStore))
			}
			container, err := app.Bootstrap(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer container.Close()

			result, err := container.Accounts.SeedDefaultChart(cmd.Context(), institutionID, actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d accounts, skipped %d existing\n", len(result.Created), len(result.Skipped))
			return nil
		},
	}
	cmd.Flags().StringVar(&institutionID, "institution", "", "institution id to seed")
	cmd.Flags().StringVar(&actor, "actor", "system", "actor recorded as creator")
	return cmd
}
