package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/debtsync/internal/database"
)

func migrateCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate up|down|version",
		Short:     "Apply or inspect the schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(database.MigrateUp), string(database.MigrateDown), string(database.MigrateVersion)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.New(cfg.ConnectionString(), cfg.Pool())
			if err != nil {
				return err
			}

			msg, err := database.Migrate(db, database.MigrateCommand(args[0]), steps)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), msg)

			return nil
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 0, "limit up/down to this many migrations")

	return cmd
}
