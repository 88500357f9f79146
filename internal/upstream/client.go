package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/logging"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/session"
)

// SessionHeader carries the per-session token on every request.
const SessionHeader = "X-Session-Token"

// Client talks to the move-in gateway that fronts the address, meter, usage,
// catalog and checkout services. It implements every collaborator interface
// in this package.
type Client struct {
	base     *url.URL
	http     *http.Client
	identity *session.Identity
	log      *zap.Logger
}

// NewClient builds a client for baseURL. A nil httpClient uses
// DefaultHTTPClient.
func NewClient(baseURL string, httpClient *http.Client, identity *session.Identity, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	if identity == nil {
		identity = session.NewIdentity()
	}
	return &Client{base: u, http: httpClient, identity: identity, log: logging.OrNop(log)}, nil
}

// WithIdentity returns a shallow copy bound to another session.
func (c *Client) WithIdentity(identity *session.Identity) *Client {
	cp := *c
	cp.identity = identity
	return &cp
}

// SearchAddresses implements AddressSearcher.
func (c *Client) SearchAddresses(ctx context.Context, query string) ([]AddressResult, error) {
	var out []AddressResult
	err := c.getJSON(ctx, "address search", "/addresses", url.Values{"q": {query}}, &out)
	return out, err
}

// SearchMeters implements MeterSearcher. A 404 means no meters.
func (c *Client) SearchMeters(ctx context.Context, q MeterQuery) ([]MeterCandidate, error) {
	params := url.Values{"street": {q.Street}, "zip": {q.Zip}}
	if q.Unit != "" {
		params.Set("unit", q.Unit)
	}
	var out []MeterCandidate
	err := c.getJSON(ctx, "meter search", "/esiids", params, &out)
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	return out, err
}

// UsageProfile implements UsageLookup.
func (c *Client) UsageProfile(ctx context.Context, esiid string) ([]float64, error) {
	var out struct {
		Monthly []float64 `json:"monthly"`
	}
	if err := c.getJSON(ctx, "usage lookup", "/usage/"+url.PathEscape(esiid), nil, &out); err != nil {
		return nil, err
	}
	return out.Monthly, nil
}

// CheckAvailability implements AvailabilityChecker.
func (c *Client) CheckAvailability(ctx context.Context, q AvailabilityQuery) (Availability, error) {
	params := url.Values{"street": {q.Street}, "zip": {q.Zip}}
	if q.ESIID != "" {
		params.Set("esiid", q.ESIID)
	}
	var out Availability
	err := c.getJSON(ctx, "availability", "/availability", params, &out)
	return out, err
}

// FetchPlans implements CatalogSource. A 429 is returned as a single
// non-exhausted *faults.RateLimitError; retrying is the caller's job.
func (c *Client) FetchPlans(ctx context.Context, q CatalogQuery) ([]pricing.Plan, error) {
	params := url.Values{"service": {string(q.Service)}, "zip": {q.Zip}}
	if q.Service.UsageBased() && len(q.Usage) > 0 {
		vals := make([]string, len(q.Usage))
		for i, v := range q.Usage {
			vals[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		params.Set("usage", strings.Join(vals, ","))
	}
	var out struct {
		Plans []pricing.Plan `json:"plans"`
	}
	if err := c.getJSON(ctx, "plan catalog", "/plans", params, &out); err != nil {
		return nil, err
	}
	for i := range out.Plans {
		if out.Plans[i].Service == "" {
			out.Plans[i].Service = q.Service
		}
	}
	return out.Plans, nil
}

// CheckoutSteps implements QuestionSource.
func (c *Client) CheckoutSteps(ctx context.Context, plans []PlanRef) ([]ProviderStep, error) {
	var out struct {
		Steps []ProviderStep `json:"steps"`
	}
	err := c.postJSON(ctx, "checkout schema", "/checkout/steps", map[string]any{"plans": plans}, &out)
	return out.Steps, err
}

// Submit implements Submitter.
func (c *Client) Submit(ctx context.Context, p Payload) (Receipt, error) {
	p.SessionToken = c.identity.Token()
	var out Receipt
	err := c.postJSON(ctx, "checkout submit", "/checkout/submit", p, &out)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &faults.UpstreamError{Op: op, Err: err}
	}
	return c.do(op, req, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	u := *c.base
	u.Path = c.base.Path + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return &faults.UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(SessionHeader, c.identity.Token())

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("upstream request failed", zap.String("op", op), zap.Error(err))
		return &faults.UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.log.Info("upstream rate limited", zap.String("op", op))
		return &faults.RateLimitError{Op: op, Attempts: 1}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("upstream non-2xx",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet))
		return &faults.UpstreamError{Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return &faults.UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func isStatus(err error, status int) bool {
	up, ok := err.(*faults.UpstreamError)
	return ok && up.Status == status
}
