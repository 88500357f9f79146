package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/logging"
	"github.com/bher20/movein/internal/metrics"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/storage"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

// Retry schedule for rate-limited catalog fetches.
const (
	DefaultAttempts    = 3
	DefaultBaseBackoff = time.Second
	DefaultTTL         = 15 * time.Minute
)

// Service fetches plan catalogs. It consults the snapshot cache first, then
// the remote catalog, retrying only on rate-limit responses with an
// exponential schedule.
type Service struct {
	src      upstream.CatalogSource
	store    storage.Storage // may be nil
	vendors  *providers.Registry
	ttl      time.Duration
	attempts int
	base     time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithStorage enables the snapshot cache.
func WithStorage(st storage.Storage) Option { return func(s *Service) { s.store = st } }

// WithTTL sets how long cached snapshots are served. Zero disables reads
// from the cache; snapshots are still written.
func WithTTL(ttl time.Duration) Option { return func(s *Service) { s.ttl = ttl } }

// WithRegistry sets the vendor registry catalogs are recorded in.
func WithRegistry(r *providers.Registry) Option { return func(s *Service) { s.vendors = r } }

// WithBackoff overrides the retry schedule.
func WithBackoff(base time.Duration, attempts int) Option {
	return func(s *Service) {
		if base > 0 {
			s.base = base
		}
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithSleep replaces the wait between retries; tests use it to record delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = fn }
}

// WithClock replaces time.Now for cache freshness checks.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a catalog Service reading from src.
func New(src upstream.CatalogSource, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		src:      src,
		vendors:  providers.NewRegistry(),
		ttl:      DefaultTTL,
		attempts: DefaultAttempts,
		base:     DefaultBaseBackoff,
		sleep:    sleepCtx,
		now:      time.Now,
		log:      logging.OrNop(log),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Vendors returns the registry of vendors seen in fetched catalogs.
func (s *Service) Vendors() *providers.Registry { return s.vendors }

// GetPlans returns the catalog for q. A fresh cached snapshot is served
// without a network call.
func (s *Service) GetPlans(ctx context.Context, q upstream.CatalogQuery) ([]pricing.Plan, error) {
	if plans, ok := s.cached(ctx, q); ok {
		return plans, nil
	}
	return s.Refresh(ctx, q)
}

// Refresh fetches q from the remote catalog, bypassing the cache, and writes
// the result back.
func (s *Service) Refresh(ctx context.Context, q upstream.CatalogQuery) ([]pricing.Plan, error) {
	if !q.Service.Valid() {
		return nil, faults.NewValidation("service", "unknown service type")
	}
	if strings.TrimSpace(q.Zip) == "" {
		return nil, faults.NewValidation("zip", "zip code is required")
	}

	plans, err := s.fetchWithRetry(ctx, q)
	if err != nil {
		return nil, err
	}
	s.record(plans, q.Service)
	s.writeBack(ctx, q, plans)
	return plans, nil
}

// fetchWithRetry calls the catalog up to s.attempts times. Every rate-limited
// answer is followed by the next backoff wait (1s, 2s, 4s by default); other
// failures return immediately.
func (s *Service) fetchWithRetry(ctx context.Context, q upstream.CatalogQuery) ([]pricing.Plan, error) {
	svc := string(q.Service)
	b := retry.WithMaxRetries(uint64(s.attempts), retry.NewExponential(s.base))

	for attempt := 1; ; attempt++ {
		plans, err := s.src.FetchPlans(ctx, q)
		if err == nil {
			metrics.CatalogFetchesTotal.WithLabelValues(svc, "ok").Inc()
			return plans, nil
		}

		var rl *faults.RateLimitError
		if !errors.As(err, &rl) {
			metrics.CatalogFetchesTotal.WithLabelValues(svc, "error").Inc()
			return nil, err
		}
		metrics.CatalogFetchesTotal.WithLabelValues(svc, "rate_limited").Inc()

		wait, stop := b.Next()
		if stop {
			return nil, &faults.RateLimitError{Op: "plan catalog", Attempts: attempt, Exhausted: true}
		}
		s.log.Warn("plan catalog rate limited, backing off",
			zap.String("service", svc),
			zap.String("zip", q.Zip),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
		)
		if err := s.sleep(ctx, wait); err != nil {
			return nil, err
		}
		if attempt >= s.attempts {
			return nil, &faults.RateLimitError{Op: "plan catalog", Attempts: attempt, Exhausted: true}
		}
		metrics.CatalogRateLimitRetriesTotal.WithLabelValues(svc).Inc()
	}
}

func (s *Service) cached(ctx context.Context, q upstream.CatalogQuery) ([]pricing.Plan, bool) {
	if s.store == nil || s.ttl <= 0 {
		return nil, false
	}
	snap, err := s.store.GetPlanSnapshot(ctx, storage.SnapshotKey(string(q.Service), q.Zip))
	if err != nil {
		s.log.Warn("catalog snapshot read failed", zap.Error(err))
		return nil, false
	}
	if snap == nil || len(snap.Payload) == 0 {
		metrics.CatalogCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	if !snap.Fresh(s.ttl, s.now()) {
		metrics.CatalogCacheTotal.WithLabelValues("stale").Inc()
		return nil, false
	}
	var plans []pricing.Plan
	if err := json.Unmarshal(snap.Payload, &plans); err != nil {
		// A broken snapshot falls through to a live fetch.
		metrics.CatalogCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CatalogCacheTotal.WithLabelValues("hit").Inc()
	s.record(plans, q.Service)
	return plans, true
}

// writeBack is best effort: a failed write only costs the next cache hit.
func (s *Service) writeBack(ctx context.Context, q upstream.CatalogQuery, plans []pricing.Plan) {
	if s.store == nil {
		return
	}
	payload, err := json.Marshal(plans)
	if err != nil {
		return
	}
	snap := storage.PlanSnapshot{
		Key:       storage.SnapshotKey(string(q.Service), q.Zip),
		Service:   string(q.Service),
		Zip:       q.Zip,
		Payload:   payload,
		FetchedAt: s.now(),
	}
	if err := s.store.SavePlanSnapshot(ctx, snap); err != nil {
		s.log.Warn("catalog snapshot write failed", zap.String("key", snap.Key), zap.Error(err))
	}
	for _, v := range s.vendorsOf(plans, q.Service) {
		if err := s.store.UpsertProvider(ctx, storage.Provider{Key: v.Key, Name: v.Key, Services: string(q.Service)}); err != nil {
			s.log.Warn("provider upsert failed", zap.String("provider", v.Key), zap.Error(err))
		}
	}
}

func (s *Service) record(plans []pricing.Plan, svc providers.ServiceType) {
	for _, v := range s.vendorsOf(plans, svc) {
		s.vendors.Register(v)
	}
}

func (s *Service) vendorsOf(plans []pricing.Plan, svc providers.ServiceType) []providers.Vendor {
	seen := make(map[string]bool)
	var out []providers.Vendor
	for _, p := range plans {
		if p.Provider == "" || seen[p.Provider] {
			continue
		}
		seen[p.Provider] = true
		out = append(out, providers.Vendor{Key: p.Provider, Services: []providers.ServiceType{svc}})
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
