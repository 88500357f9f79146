package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/movein/internal/catalog"
	"github.com/bher20/movein/internal/config"
	"github.com/bher20/movein/internal/logging"
	"github.com/bher20/movein/internal/storage"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "movein",
		Short:         "Utility move-in checkout service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newQuoteCmd(), newPrewarmCmd())
	return root
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel})
}

// backend is the shared infrastructure of serve and prewarm.
type backend struct {
	store   storage.Storage
	client  *upstream.Client
	catalog *catalog.Service
	vendors *providers.Registry
}

func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (*backend, error) {
	st, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.DBDriver,
		DSN:         cfg.DBDSN,
		AutoMigrate: cfg.AutoMigrate,
		Log:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	httpClient := upstream.NewHTTPClient(cfg.UpstreamTimeout, cfg.SkipTLSVerify)
	client, err := upstream.NewClient(cfg.UpstreamURL, httpClient, nil, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	vendors := providers.NewRegistry()
	known, err := st.ListProviders(ctx)
	if err != nil {
		log.Warn("load providers failed", zap.Error(err))
	}
	for _, p := range known {
		v := providers.Vendor{Key: p.Key, Name: p.Name, LandingURL: p.LandingURL, Phone: p.Phone}
		for _, raw := range strings.Split(p.Services, ",") {
			if svc, err := providers.ParseServiceType(raw); err == nil {
				v.Services = append(v.Services, svc)
			}
		}
		vendors.Register(v)
	}
	return &backend{
		store:   st,
		client:  client,
		vendors: vendors,
		catalog: newCatalog(client, st, vendors, cfg, log),
	}, nil
}

func newCatalog(src upstream.CatalogSource, st storage.Storage, vendors *providers.Registry, cfg config.Config, log *zap.Logger) *catalog.Service {
	return catalog.New(src, log,
		catalog.WithStorage(st),
		catalog.WithTTL(cfg.CatalogTTL),
		catalog.WithRegistry(vendors),
	)
}

func (b *backend) Close() error { return b.store.Close() }
