package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/storage"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

type scriptedSource struct {
	mu    sync.Mutex
	calls int
	errs  []error
	plans []pricing.Plan
}

func (s *scriptedSource) FetchPlans(ctx context.Context, q upstream.CatalogQuery) ([]pricing.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.plans, nil
}

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func samplePlans() []pricing.Plan {
	return []pricing.Plan{
		{ID: "p1", Provider: "reliant", Name: "Basic 12", Service: providers.ServiceElectricity,
			Rate: pricing.Rate{PerKwhCents: decimal.RequireFromString("12.5"), MonthlyFee: decimal.NewFromInt(5)}},
		{ID: "p2", Provider: "txu", Name: "Green 24", Service: providers.ServiceElectricity,
			Rate: pricing.Rate{PerKwhCents: decimal.RequireFromString("13.1"), RenewablePercent: 100}},
	}
}

var query = upstream.CatalogQuery{Service: providers.ServiceElectricity, Zip: "78701"}

func rateLimited() error { return &faults.RateLimitError{Op: "plan catalog", Attempts: 1} }

// Scenario D: the catalog keeps answering 429.
func TestGetPlans_RateLimitExhausted(t *testing.T) {
	src := &scriptedSource{errs: []error{rateLimited(), rateLimited(), rateLimited(), rateLimited()}}
	rec := &sleepRecorder{}
	svc := New(src, nil, WithSleep(rec.sleep))

	_, err := svc.GetPlans(context.Background(), query)
	var rl *faults.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if !rl.Exhausted || rl.Attempts != 3 {
		t.Fatalf("expected exhausted after 3 attempts, got %+v", rl)
	}
	if src.calls != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", src.calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(rec.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", rec.waits, want)
	}
	var total time.Duration
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, rec.waits[i], want[i])
		}
		total += rec.waits[i]
	}
	if total != 7*time.Second {
		t.Fatalf("total backoff = %v, want 7s", total)
	}
}

func TestGetPlans_RecoversAfterRateLimit(t *testing.T) {
	src := &scriptedSource{errs: []error{rateLimited()}, plans: samplePlans()}
	rec := &sleepRecorder{}
	svc := New(src, nil, WithSleep(rec.sleep))

	plans, err := svc.GetPlans(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plans) != 2 || src.calls != 2 {
		t.Fatalf("expected success on second call, got %d plans after %d calls", len(plans), src.calls)
	}
	if len(rec.waits) != 1 || rec.waits[0] != time.Second {
		t.Fatalf("waits = %v", rec.waits)
	}
	if _, ok := svc.Vendors().Get("txu"); !ok {
		t.Fatalf("vendors from the catalog should be registered")
	}
}

func TestGetPlans_OtherErrorsPropagateImmediately(t *testing.T) {
	boom := &faults.UpstreamError{Op: "plan catalog", Status: 500}
	src := &scriptedSource{errs: []error{boom}}
	rec := &sleepRecorder{}
	svc := New(src, nil, WithSleep(rec.sleep))

	_, err := svc.GetPlans(context.Background(), query)
	if !errors.Is(err, boom) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if src.calls != 1 || len(rec.waits) != 0 {
		t.Fatalf("non rate-limit errors must not retry (calls=%d waits=%v)", src.calls, rec.waits)
	}
}

func TestGetPlans_SleepCancelled(t *testing.T) {
	src := &scriptedSource{errs: []error{rateLimited(), rateLimited()}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := New(src, nil)
	if _, err := svc.GetPlans(ctx, query); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGetPlans_ValidatesQuery(t *testing.T) {
	svc := New(&scriptedSource{}, nil)
	var v *faults.ValidationError
	if _, err := svc.GetPlans(context.Background(), upstream.CatalogQuery{Service: "gas", Zip: "78701"}); !errors.As(err, &v) {
		t.Fatalf("expected validation error for unknown service, got %v", err)
	}
	if _, err := svc.GetPlans(context.Background(), upstream.CatalogQuery{Service: providers.ServiceWater}); !errors.As(err, &v) {
		t.Fatalf("expected validation error for missing zip, got %v", err)
	}
}

func TestGetPlans_SnapshotCache(t *testing.T) {
	st := storage.NewMemory()
	src := &scriptedSource{plans: samplePlans()}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(src, nil, WithStorage(st), WithTTL(time.Hour), WithClock(func() time.Time { return now }))

	if _, err := svc.GetPlans(context.Background(), query); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	plans, err := svc.GetPlans(context.Background(), query)
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("fresh snapshot should be served from cache, got %d calls", src.calls)
	}
	if len(plans) != 2 || !plans[0].Rate.PerKwhCents.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("cached plans corrupted: %+v", plans)
	}

	p, _ := st.GetProvider(context.Background(), "reliant")
	if p == nil || p.Services != "electricity" {
		t.Fatalf("provider should be written back, got %+v", p)
	}

	now = now.Add(2 * time.Hour)
	if _, err := svc.GetPlans(context.Background(), query); err != nil {
		t.Fatalf("stale fetch: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("stale snapshot should trigger a live fetch, got %d calls", src.calls)
	}
}

func TestGetPlans_BrokenSnapshotFallsThrough(t *testing.T) {
	st := storage.NewMemory()
	_ = st.SavePlanSnapshot(context.Background(), storage.PlanSnapshot{
		Key:     storage.SnapshotKey("electricity", "78701"),
		Payload: []byte("{not json"),
	})
	src := &scriptedSource{plans: samplePlans()}
	svc := New(src, nil, WithStorage(st))

	if _, err := svc.GetPlans(context.Background(), query); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("broken snapshot should fall through to the catalog")
	}
	snap, _ := st.GetPlanSnapshot(context.Background(), storage.SnapshotKey("electricity", "78701"))
	var plans []pricing.Plan
	if err := json.Unmarshal(snap.Payload, &plans); err != nil || len(plans) != 2 {
		t.Fatalf("snapshot not repaired: %v", err)
	}
}
