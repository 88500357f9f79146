package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/movein/internal/config"
	"github.com/bher20/movein/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	run := func(use, short string, fn func(cmd *cobra.Command, cfg config.Config) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.FromEnv()
				if err := cfg.Validate(); err != nil {
					return err
				}
				if cfg.DBDriver == "memory" {
					return fmt.Errorf("migrate: driver %q has no schema", cfg.DBDriver)
				}
				return fn(cmd, cfg)
			},
		}
	}
	cmd.AddCommand(
		run("up", "Apply pending migrations", func(cmd *cobra.Command, cfg config.Config) error {
			if err := migrate.Up(cmd.Context(), cfg.DBDriver, cfg.DBDSN); err != nil {
				return err
			}
			v, err := migrate.Version(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
			return nil
		}),
		run("down", "Roll back the latest migration", func(cmd *cobra.Command, cfg config.Config) error {
			return migrate.Down(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
		}),
		run("status", "Show applied migrations", func(cmd *cobra.Command, cfg config.Config) error {
			return migrate.Status(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
		}),
	)
	return cmd
}
