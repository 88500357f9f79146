package checkout

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bher20/movein/internal/address"
	"github.com/bher20/movein/internal/eligibility"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/session"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

// Monday.
var clock = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

var moveIn = time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type fakeMeters struct {
	mu      sync.Mutex
	results map[string][]upstream.MeterCandidate // by street
	calls   atomic.Int32
	block   chan struct{}
}

func (f *fakeMeters) SearchMeters(ctx context.Context, q upstream.MeterQuery) ([]upstream.MeterCandidate, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[q.Street], nil
}

type fakeAvail struct{}

func (fakeAvail) CheckAvailability(ctx context.Context, q upstream.AvailabilityQuery) (upstream.Availability, error) {
	return upstream.Availability{Services: []providers.ServiceType{
		providers.ServiceElectricity, providers.ServiceWater, providers.ServiceInternet,
	}}, nil
}

type fakeCatalog struct {
	mu    sync.Mutex
	plans map[providers.ServiceType][]pricing.Plan
	errs  map[providers.ServiceType]error
	calls int
}

func (f *fakeCatalog) GetPlans(ctx context.Context, q upstream.CatalogQuery) ([]pricing.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[q.Service]; err != nil {
		return nil, err
	}
	return f.plans[q.Service], nil
}

type fakeQuestions struct {
	steps []upstream.ProviderStep
	err   error
}

func (f *fakeQuestions) CheckoutSteps(ctx context.Context, plans []upstream.PlanRef) ([]upstream.ProviderStep, error) {
	return f.steps, f.err
}

type fakeSubmitter struct {
	mu       sync.Mutex
	err      error
	calls    int
	payloads []upstream.Payload

	// When set, Submit signals entered and waits for gate.
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, p upstream.Payload) (upstream.Receipt, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.payloads = append(f.payloads, p)
	if f.err != nil {
		return upstream.Receipt{}, f.err
	}
	return upstream.Receipt{Reference: "REF-1"}, nil
}

func rate(cents string, fee int64, renewable float64) pricing.Rate {
	return pricing.Rate{
		PerKwhCents:      decimal.RequireFromString(cents),
		MonthlyFee:       decimal.NewFromInt(fee),
		RenewablePercent: renewable,
	}
}

func catalogPlans() map[providers.ServiceType][]pricing.Plan {
	return map[providers.ServiceType][]pricing.Plan{
		providers.ServiceElectricity: {
			{ID: "e1", Provider: "reliant", Name: "Simple 12", Service: providers.ServiceElectricity, Rate: rate("12", 0, 0)},
			{ID: "e2", Provider: "green", Name: "Wind 24", Service: providers.ServiceElectricity, Rate: rate("10", 5, 100)},
			{ID: "e3", Provider: "txu", Name: "Saver", Service: providers.ServiceElectricity, Rate: rate("11", 0, 20)},
			{ID: "e4", Provider: "txu", Name: "Premium", Service: providers.ServiceElectricity, Rate: rate("15", 0, 0)},
		},
		providers.ServiceWater: {
			{ID: "w1", Provider: "austinwater", Name: "Residential", Service: providers.ServiceWater, Rate: rate("0", 30, 0)},
		},
		providers.ServiceInternet: {
			{ID: "i1", Provider: "fiber", Name: "Gig", Service: providers.ServiceInternet, Rate: rate("0", 70, 0)},
		},
	}
}

func providerSteps() []upstream.ProviderStep {
	return []upstream.ProviderStep{
		{
			Provider:     "green",
			Service:      providers.ServiceElectricity,
			LeadTimeDays: 3,
			Questions: []upstream.Question{
				{ID: "ssn", Prompt: "Social security number", Type: upstream.QuestionSSN, Required: true},
				{ID: "dob", Prompt: "Date of birth", Type: upstream.QuestionDate, Required: true},
				{ID: "contact", Prompt: "Preferred contact", Type: upstream.QuestionSelect, Required: true, Options: []string{"email", "phone"}},
				{ID: "notes", Prompt: "Notes", Type: upstream.QuestionText},
			},
			Documents: []upstream.DocumentRequirement{
				{ID: "lease", Label: "Lease or deed", Required: true},
				{ID: "extra", Label: "Anything else"},
			},
		},
		{Provider: "austinwater", Service: providers.ServiceWater},
	}
}

var mainSt = upstream.AddressResult{
	Address: "1 Main St", City: "Austin", State: "TX", ZipCode: "78701",
	Status: "Active", PremiseType: "Residential",
}

func meter(id, street, status string) upstream.MeterCandidate {
	return upstream.MeterCandidate{ESIID: id, Address: street, City: "Austin", State: "TX", Zip: "78701", PremiseType: "Residential", Status: status}
}

type fixture struct {
	c         *Controller
	meters    *fakeMeters
	catalog   *fakeCatalog
	questions *fakeQuestions
	submitter *fakeSubmitter
	identity  *session.Identity

	mu        sync.Mutex
	confirmed []OrderConfirmation
	failures  []error
	ids       int
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		meters: &fakeMeters{results: map[string][]upstream.MeterCandidate{
			"1 Main St": {meter("1001", "1 Main St", "Active")},
			"2 Oak Ave": {meter("2001", "2 Oak Ave", "Active")},
		}},
		catalog:   &fakeCatalog{plans: catalogPlans(), errs: map[providers.ServiceType]error{}},
		questions: &fakeQuestions{steps: providerSteps()},
		submitter: &fakeSubmitter{},
		identity:  session.NewIdentityWith("session-token-1234"),
	}
	resolver := address.NewResolver(f.meters, fakeAvail{}, nil, -1, nil)
	base := []Option{
		WithClock(func() time.Time { return clock }),
		WithOrderIDs(f.nextID),
		OnConfirmed(func(ctx context.Context, c OrderConfirmation, s State) {
			f.mu.Lock()
			f.confirmed = append(f.confirmed, c)
			f.mu.Unlock()
		}),
		OnFailure(func(ctx context.Context, err error, s State) {
			f.mu.Lock()
			f.failures = append(f.failures, err)
			f.mu.Unlock()
		}),
	}
	f.c = New(Deps{
		Resolver:  resolver,
		Catalog:   f.catalog,
		Questions: f.questions,
		Submitter: f.submitter,
		Identity:  f.identity,
	}, append(base, opts...)...)
	return f
}

func (f *fixture) nextID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids++
	return fmt.Sprintf("id-%d", f.ids)
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// toServices drives the wizard to step 3 with a confirmed meter at 1 Main St
// and a single-family home.
func (f *fixture) toServices(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	must(t, f.c.SelectSuggestion(ctx, mainSt))
	must(t, f.c.SetMoveInDate(moveIn))
	must(t, f.c.Advance())
	must(t, f.c.SetDwellingType(string(eligibility.DwellingSingleFamily)))
	must(t, f.c.Advance())
	if got := f.c.Snapshot().Step; got != StepServices {
		t.Fatalf("expected services step, got %v", got)
	}
}

// toReview continues to step 4 with water and electricity plans chosen and
// the provider questions loaded.
func (f *fixture) toReview(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	f.toServices(t)
	must(t, f.c.LoadPlans(ctx, providers.ServiceWater))
	must(t, f.c.LoadPlans(ctx, providers.ServiceElectricity))
	must(t, f.c.SelectPlan(providers.ServiceWater, "w1"))
	must(t, f.c.SelectPlan(providers.ServiceElectricity, "e2"))
	must(t, f.c.Advance())
	must(t, f.c.LoadQuestions(ctx))
}

// completeReview answers everything needed to submit.
func (f *fixture) completeReview(t *testing.T) {
	t.Helper()
	must(t, f.c.SetAnswer("ssn", "219-09-9999"))
	must(t, f.c.SetAnswer("dob", "1990-04-01"))
	must(t, f.c.SetAnswer("contact", "email"))
	if _, err := f.c.UploadDocument(context.Background(), "lease", "lease.png", pngBytes); err != nil {
		t.Fatalf("upload: %v", err)
	}
	must(t, f.c.AcceptTerms(true))
}
