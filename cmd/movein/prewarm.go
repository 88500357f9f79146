package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/movein/internal/config"
	"github.com/bher20/movein/internal/cron"
)

func newPrewarmCmd() *cobra.Command {
	var zips []string
	cmd := &cobra.Command{
		Use:   "prewarm",
		Short: "Refresh cached plan catalogs once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if len(zips) > 0 {
				cfg.PrewarmZips = zips
			}
			if len(cfg.PrewarmZips) == 0 {
				return fmt.Errorf("prewarm: no zip codes configured")
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			b, err := openBackend(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			w := cron.NewWorker(b.catalog, b.store, cron.Config{Schedule: cfg.PrewarmSchedule, Zips: cfg.PrewarmZips}, log)
			res, err := w.RunOnce(cmd.Context())
			if res.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "another worker holds the prewarm lock")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d catalogs, %d failed\n", res.Total-res.Failed, res.Failed)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&zips, "zip", nil, "zip codes to refresh (default MOVEIN_PREWARM_ZIPS)")
	return cmd
}
