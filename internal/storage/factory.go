package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bher20/movein/internal/logging"
)

// Config controls how the storage backend is opened.
type Config struct {
	Driver      string
	DSN         string
	AutoMigrate bool
	Providers   []Provider
	Log         *zap.Logger
}

// Open constructs a Storage based on the given configuration.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	log := logging.OrNop(cfg.Log)
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}
	switch drv {
	case "memory":
		log.Info("storage: using in-memory backend")
		return NewMemoryWithProviders(cfg.Providers), nil

	case "sqlite", "postgres", "postgrespool":
		log.Info("storage: using gorm backend", zap.String("driver", drv))
		st, err := NewGormStorage(drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := st.Migrate(ctx); err != nil {
				st.Close()
				return nil, fmt.Errorf("storage migrate: %w", err)
			}
		}
		for _, p := range cfg.Providers {
			if err := st.UpsertProvider(ctx, p); err != nil {
				st.Close()
				return nil, fmt.Errorf("storage seed provider %s: %w", p.Key, err)
			}
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}
