package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/movein/internal/address"
	"github.com/bher20/movein/internal/alerting"
	"github.com/bher20/movein/internal/api"
	"github.com/bher20/movein/internal/checkout"
	"github.com/bher20/movein/internal/config"
	"github.com/bher20/movein/internal/cron"
	"github.com/bher20/movein/internal/eligibility"
	"github.com/bher20/movein/internal/notification"
	"github.com/bher20/movein/internal/session"
)

func newServeCmd() *cobra.Command {
	var prewarm bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, prewarm, log)
		},
	}
	cmd.Flags().BoolVar(&prewarm, "prewarm", true, "run the catalog prewarm worker when MOVEIN_PREWARM_ZIPS is set")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, prewarm bool, log *zap.Logger) error {
	mode, err := eligibility.ParseMode(cfg.EligibilityMode)
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	mailer := notification.NewService(notification.Config{
		APIKey:      cfg.SendgridAPIKey,
		FromAddress: cfg.MailFrom,
		FromName:    cfg.MailFromName,
	}, log)
	alerter := alerting.NewAlerter(alerting.AlertConfig{
		WebhookURL:  cfg.AlertWebhookURL,
		WebhookType: cfg.AlertWebhookType,
	}, log)

	factory := func(id *session.Identity) *checkout.Controller {
		client := b.client.WithIdentity(id)
		return checkout.New(checkout.Deps{
			Searcher:  address.NewSearcher(client, cfg.Debounce, log),
			Resolver:  address.NewResolver(client, client, client, cfg.MinLoading, log),
			Catalog:   newCatalog(client, b.store, b.vendors, cfg, log),
			Questions: client,
			Submitter: client,
			Identity:  id,
		},
			checkout.WithEligibilityMode(mode),
			checkout.WithLogger(log.With(zap.String("session", maskToken(id)))),
			checkout.OnConfirmed(api.RecordOrders(b.store, id.Token, log)),
			checkout.OnConfirmed(mailer.Hook()),
			checkout.OnFailure(alerter.Hook(id.Token, nil)),
		)
	}

	mux := api.NewMux(api.Options{
		Sessions: api.NewSessions(factory, api.DefaultSessionTTL),
		Storage:  b.store,
		Catalog:  b.catalog,
		Log:      log,
	})

	if prewarm && len(cfg.PrewarmZips) > 0 {
		w := cron.NewWorker(b.catalog, b.store, cron.Config{Schedule: cfg.PrewarmSchedule, Zips: cfg.PrewarmZips}, log)
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("prewarm worker stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("movein listening", zap.String("addr", srv.Addr), zap.String("db_driver", cfg.DBDriver))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func maskToken(id *session.Identity) string {
	t := id.Token()
	if len(t) > 8 {
		return t[:8]
	}
	return t
}
