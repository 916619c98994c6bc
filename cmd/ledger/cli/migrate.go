package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/platform/db"
)

func newMigrateCommand() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema",
	}
	cmd.PersistentFlags().IntVar(&steps, "steps", 0, "number of migrations to apply; 0 means all for up and one for down")

	withMigrator := func(fn func(*db.Migrator) error) error {
		cfg, _, err := loadRuntime()
		if err != nil {
			return err
		}
		if cfg.PGDSN == "" {
			return errors.New("PG_DSN must be set to run migrations")
		}
		m, err := db.NewMigrator(cfg.PGDSN)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()
		return fn(m)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *db.Migrator) error { return m.Up(steps) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			n := steps
			if n <= 0 {
				n = 1
			}
			return withMigrator(func(m *db.Migrator) error { return m.Down(n) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *db.Migrator) error {
				version, dirty, ok, err := m.Version()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
				return nil
			})
		},
	})
	return cmd
}
