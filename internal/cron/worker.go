package cron

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bher20/movein/internal/logging"
	"github.com/bher20/movein/internal/metrics"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/storage"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

// JobName is the scheduled_jobs row of the catalog prewarm.
const JobName = "prewarm_catalog"

const lockKey int64 = 42

// DefaultSchedule refreshes snapshots every ten minutes, inside the default
// catalog TTL.
const DefaultSchedule = "600"

// Refresher fetches a catalog bypassing the cache and stores the snapshot.
type Refresher interface {
	Refresh(ctx context.Context, q upstream.CatalogQuery) ([]pricing.Plan, error)
}

// Config lists what the worker keeps warm.
type Config struct {
	// Schedule is an interval in seconds or a standard cron expression.
	Schedule string
	Zips     []string
	// Services defaults to every service type.
	Services []providers.ServiceType
	// Poll is how often the loop checks whether a run is due.
	Poll time.Duration
}

// Result summarizes one run.
type Result struct {
	Total   int
	Failed  int
	Skipped bool
}

// Worker periodically refreshes plan catalog snapshots so sessions start
// from the cache. When the storage supports advisory locks only one replica
// runs a given cycle.
type Worker struct {
	refresher Refresher
	store     storage.Storage
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

func NewWorker(r Refresher, st storage.Storage, cfg Config, log *zap.Logger) *Worker {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if len(cfg.Services) == 0 {
		cfg.Services = providers.Services
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 10 * time.Second
	}
	return &Worker{refresher: r, store: st, cfg: cfg, log: logging.OrNop(log), now: time.Now}
}

// ValidateSchedule checks an interval or cron expression.
func ValidateSchedule(setting string) error {
	if v, err := strconv.Atoi(setting); err == nil {
		if v <= 0 {
			return fmt.Errorf("interval must be positive, got %d", v)
		}
		return nil
	}
	if _, err := cron.ParseStandard(setting); err != nil {
		return fmt.Errorf("parse schedule %q: %w", setting, err)
	}
	return nil
}

// NextRun returns the next run after last for an interval in seconds or a
// cron expression. Unparseable settings fall back to five minutes.
func NextRun(setting string, last time.Time) time.Time {
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return last.Add(time.Duration(v) * time.Second)
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(last)
	}
	return last.Add(5 * time.Minute)
}

// Run refreshes immediately and then on schedule until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.cfg.Zips) == 0 {
		return errors.New("prewarm: no zip codes configured")
	}
	w.log.Info("prewarm worker starting",
		zap.String("schedule", w.cfg.Schedule),
		zap.Strings("zips", w.cfg.Zips),
	)

	ticker := time.NewTicker(w.cfg.Poll)
	defer ticker.Stop()
	next := w.now()
	for {
		if !w.now().Before(next) {
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("prewarm run failed", zap.Error(err))
			}
			next = NextRun(w.cfg.Schedule, w.now())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce refreshes every configured zip and service. A failure of one
// catalog does not stop the others; the first error is returned.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	started := w.now()
	var res Result

	if locker, ok := w.store.(storage.Locker); ok {
		got, err := locker.AcquireAdvisoryLock(ctx, lockKey)
		if err != nil {
			metrics.UpdateJobMetrics(JobName, started, err)
			return res, fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !got {
			w.log.Info("prewarm lock held by another worker, skipping run")
			res.Skipped = true
			return res, nil
		}
		defer func() {
			if _, err := locker.ReleaseAdvisoryLock(context.WithoutCancel(ctx), lockKey); err != nil {
				w.log.Warn("release advisory lock failed", zap.Error(err))
			}
		}()
	}

	var runErr error
	for _, zip := range w.cfg.Zips {
		zip = strings.TrimSpace(zip)
		if zip == "" {
			continue
		}
		for _, svc := range w.cfg.Services {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			res.Total++
			if _, err := w.refresher.Refresh(ctx, upstream.CatalogQuery{Service: svc, Zip: zip}); err != nil {
				res.Failed++
				w.log.Warn("prewarm refresh failed",
					zap.String("service", string(svc)),
					zap.String("zip", zip),
					zap.Error(err),
				)
				if runErr == nil {
					runErr = err
				}
			}
		}
	}

	metrics.UpdateJobMetrics(JobName, started, runErr)
	dur := w.now().Sub(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := w.store.UpdateScheduledJob(ctx, JobName, started, dur, runErr == nil, errMsg); err != nil {
		w.log.Warn("update scheduled_jobs failed", zap.Error(err))
	}
	w.log.Info("prewarm run finished",
		zap.Int("catalogs", res.Total),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", dur),
	)
	return res, runErr
}
