package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bher20/movein/internal/address"
	"github.com/bher20/movein/internal/catalog"
	"github.com/bher20/movein/internal/checkout"
	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/session"
	"github.com/bher20/movein/internal/storage"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

type fakeMeters struct{}

func (fakeMeters) SearchMeters(ctx context.Context, q upstream.MeterQuery) ([]upstream.MeterCandidate, error) {
	return []upstream.MeterCandidate{{
		ESIID: "1001", Address: q.Street, City: "Austin", State: "TX", Zip: "78701",
		PremiseType: "Residential", Status: upstream.StatusActive,
	}}, nil
}

type fakeAvail struct{}

func (fakeAvail) CheckAvailability(ctx context.Context, q upstream.AvailabilityQuery) (upstream.Availability, error) {
	return upstream.Availability{Services: []providers.ServiceType{providers.ServiceElectricity, providers.ServiceWater}}, nil
}

type fakeSource struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeSource) FetchPlans(ctx context.Context, q upstream.CatalogQuery) ([]pricing.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rate := func(cents string, fee int64) pricing.Rate {
		return pricing.Rate{PerKwhCents: decimal.RequireFromString(cents), MonthlyFee: decimal.NewFromInt(fee)}
	}
	switch q.Service {
	case providers.ServiceElectricity:
		return []pricing.Plan{
			{ID: "e1", Provider: "reliant", Name: "Simple", Service: q.Service, Rate: rate("12", 0)},
			{ID: "e2", Provider: "txu", Name: "Saver", Service: q.Service, Rate: rate("10", 5)},
		}, nil
	case providers.ServiceWater:
		return []pricing.Plan{{ID: "w1", Provider: "austinwater", Name: "Residential", Service: q.Service, Rate: rate("0", 30)}}, nil
	}
	return nil, nil
}

type fakeUpstream struct {
	mu       sync.Mutex
	err      error
	payloads []upstream.Payload
}

func (f *fakeUpstream) CheckoutSteps(ctx context.Context, plans []upstream.PlanRef) ([]upstream.ProviderStep, error) {
	return []upstream.ProviderStep{
		{Provider: "txu", Service: providers.ServiceElectricity, LeadTimeDays: 2,
			Questions: []upstream.Question{{ID: "email", Prompt: "Email", Type: upstream.QuestionText}}},
		{Provider: "austinwater", Service: providers.ServiceWater,
			Documents: []upstream.DocumentRequirement{{ID: "lease", Label: "Lease"}}},
	}, nil
}

func (f *fakeUpstream) Submit(ctx context.Context, p upstream.Payload) (upstream.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	if f.err != nil {
		return upstream.Receipt{}, f.err
	}
	return upstream.Receipt{Reference: "REF-9"}, nil
}

type harness struct {
	srv      *httptest.Server
	source   *fakeSource
	up       *fakeUpstream
	store    *storage.MemoryStorage
	sessions *Sessions
	token    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{source: &fakeSource{}, up: &fakeUpstream{}, store: storage.NewMemory()}
	noSleep := catalog.WithSleep(func(ctx context.Context, d time.Duration) error { return nil })
	shared := catalog.New(h.source, nil, catalog.WithStorage(h.store), noSleep)
	h.sessions = NewSessions(func(id *session.Identity) *checkout.Controller {
		return checkout.New(checkout.Deps{
			Resolver:  address.NewResolver(fakeMeters{}, fakeAvail{}, nil, -1, nil),
			Catalog:   catalog.New(h.source, nil, noSleep),
			Questions: h.up,
			Submitter: h.up,
			Identity:  id,
		}, checkout.OnConfirmed(RecordOrders(h.store, id.Token, nil)))
	}, 0)
	h.srv = httptest.NewServer(NewMux(Options{Sessions: h.sessions, Storage: h.store, Catalog: shared}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return h.send(t, req)
}

func (h *harness) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	if h.token != "" {
		req.Header.Set(upstream.SessionHeader, h.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if tok := resp.Header.Get(upstream.SessionHeader); tok != "" {
		h.token = tok
	}
	return resp, buf.Bytes()
}

// expect runs a request and fails unless it answered status.
func (h *harness) expect(t *testing.T, status int, method, path string, body any) []byte {
	t.Helper()
	resp, raw := h.do(t, method, path, body)
	if resp.StatusCode != status {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, status, resp.StatusCode, raw)
	}
	return raw
}

type stateView struct {
	Step          int               `json:"step"`
	StepName      string            `json:"stepName"`
	SessionToken  string            `json:"sessionToken"`
	SelectedPlans map[string]string `json:"selectedPlans"`
	VisiblePlans  map[string][]struct {
		ID string `json:"id"`
	} `json:"visiblePlans"`
}

func decodeState(t *testing.T, raw []byte) stateView {
	t.Helper()
	var s stateView
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("decode state: %v: %s", err, raw)
	}
	return s
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		h.expect(t, http.StatusOK, http.MethodGet, path, nil)
	}
}

func TestSwaggerMounted(t *testing.T) {
	h := newHarness(t)
	h.expect(t, http.StatusOK, http.MethodGet, "/swagger/", nil)
	raw := h.expect(t, http.StatusOK, http.MethodGet, "/swagger/openapi.yaml", nil)
	if !strings.Contains(string(raw), "/api/checkout/submit") {
		t.Fatalf("openapi document not served: %.80s", raw)
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	h := newHarness(t)

	s := decodeState(t, h.expect(t, http.StatusOK, http.MethodGet, "/api/checkout", nil))
	if s.SessionToken == "" || s.SessionToken != h.token {
		t.Fatalf("expected header token %q to match body token %q", h.token, s.SessionToken)
	}
	first := h.token

	h.expect(t, http.StatusOK, http.MethodGet, "/api/checkout", nil)
	if h.token != first {
		t.Fatalf("expected session to be reused, got new token %q", h.token)
	}
	if n := h.sessions.Len(); n != 1 {
		t.Fatalf("expected 1 session, got %d", n)
	}

	h.token = "unknown"
	h.expect(t, http.StatusOK, http.MethodGet, "/api/checkout", nil)
	if h.token == "unknown" || h.token == first {
		t.Fatalf("expected a fresh token for an unknown session, got %q", h.token)
	}
}

func TestSessionsExpire(t *testing.T) {
	s := NewSessions(func(id *session.Identity) *checkout.Controller {
		return checkout.New(checkout.Deps{Identity: id})
	}, time.Minute)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	c := s.Get("")
	if got := s.Get(c.Token()); got != c {
		t.Fatalf("expected the same controller for a known token")
	}
	now = now.Add(2 * time.Minute)
	if got := s.Get(c.Token()); got == c {
		t.Fatalf("expected an expired session to be replaced")
	}
	if n := s.Len(); n != 1 {
		t.Fatalf("expected only the new session to remain, got %d", n)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", faults.NewValidation("zip", "required"), http.StatusUnprocessableEntity},
		{"no address", faults.ErrNoAddress, http.StatusUnprocessableEntity},
		{"not selectable", fmt.Errorf("select: %w", faults.ErrNotSelectable), http.StatusUnprocessableEntity},
		{"not found", &faults.NotFoundError{What: "meter", Query: "1 Main St"}, http.StatusNotFound},
		{"rate limit", &faults.RateLimitError{Op: "plan catalog", Exhausted: true}, http.StatusServiceUnavailable},
		{"partial", &faults.PartialFailure{Err: errors.New("boom")}, http.StatusBadGateway},
		{"upstream", &faults.UpstreamError{Op: "submit", Status: 500}, http.StatusBadGateway},
		{"busy", checkout.ErrBusy, http.StatusConflict},
		{"stale", faults.ErrStale, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusOf(tc.err); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestWriteErrorBodies(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &faults.RateLimitError{Op: "plan catalog", Attempts: 4, Exhausted: true})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Retryable || body.Message == "" {
		t.Fatalf("expected a retryable error with a message, got %+v", body)
	}

	rec = httptest.NewRecorder()
	writeError(rec, &faults.PartialFailure{Err: &faults.UpstreamError{Op: "submit", Status: 500}, DocumentRefs: []string{"doc-1"}})
	body = ErrorResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.DocumentRefs) != 1 || body.DocumentRefs[0] != "doc-1" {
		t.Fatalf("expected document refs in body, got %+v", body)
	}

	rec = httptest.NewRecorder()
	writeError(rec, errors.New("dial tcp 10.0.0.1: refused"))
	body = ErrorResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "internal error" {
		t.Fatalf("expected internal details hidden, got %q", body.Error)
	}
}

func TestPlansEndpoint(t *testing.T) {
	h := newHarness(t)

	raw := h.expect(t, http.StatusOK, http.MethodGet, "/api/plans?service=electricity&zip=78701&average=1000", nil)
	var q QuoteResponse
	if err := json.Unmarshal(raw, &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(q.Plans) != 2 || q.Plans[0].ID != "e2" {
		t.Fatalf("expected e2 ranked first, got %+v", q.Plans)
	}
	if avg := q.Usage.Average(); avg < 999 || avg > 1001 {
		t.Fatalf("expected usage scaled to 1000, got %v", avg)
	}

	// Second call is served from the snapshot.
	h.expect(t, http.StatusOK, http.MethodGet, "/api/plans?service=electricity&zip=78701", nil)
	if h.source.calls != 1 {
		t.Fatalf("expected 1 upstream fetch, got %d", h.source.calls)
	}

	h.expect(t, http.StatusUnprocessableEntity, http.MethodGet, "/api/plans?service=gas&zip=78701", nil)
	h.expect(t, http.StatusUnprocessableEntity, http.MethodGet, "/api/plans?service=electricity&zip=78701&average=abc", nil)
	h.expect(t, http.StatusUnprocessableEntity, http.MethodGet, "/api/plans?service=electricity", nil)
}

func TestPlansEndpointRateLimited(t *testing.T) {
	h := newHarness(t)
	h.source.err = &faults.RateLimitError{Op: "plan catalog"}

	resp, raw := h.do(t, http.MethodGet, "/api/plans?service=water&zip=78702", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", resp.StatusCode, raw)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestOrderNotFound(t *testing.T) {
	h := newHarness(t)
	h.expect(t, http.StatusNotFound, http.MethodGet, "/api/orders/missing", nil)
}

func upload(t *testing.T, h *harness, path, name string, data []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return h.send(t, req)
}

func TestCheckoutFlow(t *testing.T) {
	h := newHarness(t)
	moveIn := time.Now().AddDate(0, 0, 10).Format(checkout.DateLayout)

	// Advancing without an address is refused.
	h.expect(t, http.StatusUnprocessableEntity, http.MethodPost, "/api/checkout/advance", nil)

	suggestion := upstream.AddressResult{
		Address: "1 Main St", City: "Austin", State: "TX", ZipCode: "78701",
		Status: "Active", PremiseType: "Residential",
	}
	h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/address/select", map[string]any{"suggestion": suggestion})
	h.expect(t, http.StatusUnprocessableEntity, http.MethodPost, "/api/checkout/move-in", map[string]string{"date": "03/02/2026"})
	h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/move-in", map[string]string{"date": moveIn})
	s := decodeState(t, h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/advance", nil))
	if s.StepName != checkout.StepHome.String() {
		t.Fatalf("expected home step, got %q", s.StepName)
	}

	h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/home", map[string]string{"dwellingType": "single_family"})
	h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/advance", nil)

	h.expect(t, http.StatusUnprocessableEntity, http.MethodPost, "/api/checkout/plans/gas/load", nil)
	h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/plans/water/load", nil)
	s = decodeState(t, h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/plans/electricity/load", nil))
	if got := s.VisiblePlans["electricity"]; len(got) != 2 {
		t.Fatalf("expected 2 visible electricity plans, got %+v", got)
	}
	h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/plans/water/select", map[string]string{"planId": "w1"})
	s = decodeState(t, h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/plans/electricity/select", map[string]string{"planId": "e2"}))
	if s.SelectedPlans["electricity"] != "e2" {
		t.Fatalf("expected e2 selected, got %+v", s.SelectedPlans)
	}
	h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/usage", map[string]string{"preset": "large"})
	h.expect(t, http.StatusUnprocessableEntity, http.MethodPost, "/api/checkout/usage", map[string]string{})

	s = decodeState(t, h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/advance", nil))
	if s.StepName != checkout.StepReview.String() {
		t.Fatalf("expected review step, got %q", s.StepName)
	}
	h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/questions/load", nil)

	// Terms not accepted yet.
	h.expect(t, http.StatusUnprocessableEntity, http.MethodPost, "/api/checkout/submit", nil)

	h.expect(t, http.StatusUnprocessableEntity, http.MethodPost, "/api/checkout/answers", map[string]any{"answers": map[string]string{"nope": "x"}})
	h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/answers", map[string]any{"answers": map[string]string{"email": "a@b.co"}})
	if resp, raw := upload(t, h, "/api/checkout/documents/lease", "lease.txt", []byte("plain text")); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected text upload refused, got %d: %s", resp.StatusCode, raw)
	}
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	if resp, raw := upload(t, h, "/api/checkout/documents/lease", "lease.png", png); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected upload accepted, got %d: %s", resp.StatusCode, raw)
	}
	h.expect(t, http.StatusOK, http.MethodPost, "/api/checkout/terms", map[string]bool{"accepted": true})

	// Upstream failure keeps the document refs.
	h.up.err = &faults.UpstreamError{Op: "submit", Status: http.StatusInternalServerError}
	var failed ErrorResponse
	if err := json.Unmarshal(h.expect(t, http.StatusBadGateway, http.MethodPost, "/api/checkout/submit", nil), &failed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(failed.DocumentRefs) != 1 || !failed.Retryable {
		t.Fatalf("expected retryable failure with one document ref, got %+v", failed)
	}

	h.up.err = nil
	var conf checkout.OrderConfirmation
	if err := json.Unmarshal(h.expect(t, http.StatusCreated, http.MethodPost, "/api/checkout/submit", nil), &conf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conf.OrderID == "" || conf.Reference != "REF-9" || len(conf.Services) != 2 {
		t.Fatalf("unexpected confirmation %+v", conf)
	}
	if n := len(h.up.payloads); n != 2 {
		t.Fatalf("expected 2 submit attempts, got %d", n)
	}

	// Confirmed sessions cannot go back.
	h.expect(t, http.StatusUnprocessableEntity, http.MethodPost, "/api/checkout/address/change", nil)

	raw := h.expect(t, http.StatusOK, http.MethodGet, "/api/orders/"+conf.OrderID, nil)
	if !strings.Contains(string(raw), "REF-9") {
		t.Fatalf("expected stored order payload, got %s", raw)
	}
	o, err := h.store.GetOrder(context.Background(), conf.OrderID)
	if err != nil || o == nil {
		t.Fatalf("expected stored order, got %v %v", o, err)
	}
	if strings.Contains(o.SessionToken, h.token[:len(h.token)-4]) {
		t.Fatalf("expected masked session token, got %q", o.SessionToken)
	}
}
