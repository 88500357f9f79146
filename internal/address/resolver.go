package address

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/logging"
	"github.com/bher20/movein/internal/metrics"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/upstream"
)

// Status is the meter resolution state of the current address.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusNotFound       Status = "not_found"
	StatusDisambiguation Status = "disambiguation"
	StatusConfirmed      Status = "confirmed"
)

// UsageSource tells where the usage profile came from.
type UsageSource string

const (
	UsageFromHistory UsageSource = "history"
	UsageDefault     UsageSource = "default"
)

// Resolution is the outcome of resolving an address to a meter.
type Resolution struct {
	Status       Status                    `json:"status"`
	Candidates   []upstream.MeterCandidate `json:"candidates,omitempty"`
	Confirmed    *upstream.MeterCandidate  `json:"confirmed,omitempty"`
	Availability *upstream.Availability    `json:"availability,omitempty"`
	Usage        *pricing.Usage            `json:"usage,omitempty"`
	UsageSource  UsageSource               `json:"usage_source,omitempty"`
}

// Resolver turns a chosen address into a confirmed meter, its usage profile
// and service availability.
type Resolver struct {
	meters  upstream.MeterSearcher
	avail   upstream.AvailabilityChecker
	usage   upstream.UsageLookup
	minHold time.Duration
	log     *zap.Logger
}

// NewResolver creates a Resolver. minHold is the minimum loading time of each
// resolution; zero uses DefaultMinLoading, negative disables it.
func NewResolver(meters upstream.MeterSearcher, avail upstream.AvailabilityChecker, usage upstream.UsageLookup, minHold time.Duration, log *zap.Logger) *Resolver {
	if minHold == 0 {
		minHold = DefaultMinLoading
	}
	if minHold < 0 {
		minHold = 0
	}
	return &Resolver{meters: meters, avail: avail, usage: usage, minHold: minHold, log: logging.OrNop(log)}
}

// Resolve resolves the meter for a. When a already carries an ESIID the meter
// is confirmed directly and only usage and availability are fetched.
// Otherwise the meter search and the availability check run concurrently.
//
// Zero meters, or none active, yield a *faults.NotFoundError. One active
// meter is confirmed automatically, several put the resolution into
// disambiguation.
func (r *Resolver) Resolve(ctx context.Context, a Address) (Resolution, error) {
	var res Resolution
	err := Hold(ctx, r.minHold, func(ctx context.Context) error {
		var err error
		if a.ESIID != "" {
			res, err = r.resolveKnown(ctx, a)
			return err
		}
		res, err = r.resolveSearch(ctx, a)
		return err
	})
	r.observe(res, err)
	if err != nil {
		return Resolution{Status: failureStatus(err)}, err
	}
	return res, nil
}

// Confirm commits the user's pick among disambiguation candidates and fetches
// its usage profile. Only active candidates can be confirmed.
func (r *Resolver) Confirm(ctx context.Context, cur Resolution, esiid string) (Resolution, error) {
	if cur.Status != StatusDisambiguation {
		return cur, faults.NewValidation("esiid", "no meter choice is pending")
	}
	var pick *upstream.MeterCandidate
	for i := range cur.Candidates {
		if cur.Candidates[i].ESIID == esiid {
			c := cur.Candidates[i]
			pick = &c
			break
		}
	}
	if pick == nil {
		return cur, faults.NewValidation("esiid", "unknown meter")
	}
	if !pick.Active() {
		return cur, faults.NewValidation("esiid", "meter is not active")
	}

	next := cur
	err := Hold(ctx, r.minHold, func(ctx context.Context) error {
		u, src := r.fetchUsage(ctx, pick.ESIID)
		next.Status = StatusConfirmed
		next.Confirmed = pick
		next.Usage = &u
		next.UsageSource = src
		return nil
	})
	if err != nil {
		return cur, err
	}
	r.observe(next, nil)
	return next, nil
}

func (r *Resolver) resolveKnown(ctx context.Context, a Address) (Resolution, error) {
	meter := upstream.MeterCandidate{
		ESIID:       a.ESIID,
		Address:     a.Street,
		City:        a.City,
		State:       a.State,
		Zip:         a.Zip,
		PremiseType: upstream.PremiseResidential,
		Status:      upstream.StatusActive,
	}

	var (
		avail upstream.Availability
		usage pricing.Usage
		src   UsageSource
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		avail, err = r.avail.CheckAvailability(gctx, upstream.AvailabilityQuery{Street: a.Street, Zip: a.Zip, ESIID: a.ESIID})
		return wrapUpstream("availability", err)
	})
	g.Go(func() error {
		usage, src = r.fetchUsage(gctx, a.ESIID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Resolution{}, err
	}
	return Resolution{
		Status:       StatusConfirmed,
		Candidates:   []upstream.MeterCandidate{meter},
		Confirmed:    &meter,
		Availability: &avail,
		Usage:        &usage,
		UsageSource:  src,
	}, nil
}

func (r *Resolver) resolveSearch(ctx context.Context, a Address) (Resolution, error) {
	var (
		avail      upstream.Availability
		candidates []upstream.MeterCandidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		candidates, err = r.meters.SearchMeters(gctx, upstream.MeterQuery{Street: a.Street, Zip: a.Zip, Unit: a.Unit})
		return wrapUpstream("meter search", err)
	})
	g.Go(func() error {
		var err error
		avail, err = r.avail.CheckAvailability(gctx, upstream.AvailabilityQuery{Street: a.Street, Zip: a.Zip})
		return wrapUpstream("availability", err)
	})
	if err := g.Wait(); err != nil {
		return Resolution{}, err
	}

	if len(candidates) == 0 {
		return Resolution{}, &faults.NotFoundError{What: "meter", Query: a.Format()}
	}

	if !anyActive(candidates) {
		return Resolution{}, &faults.NotFoundError{What: "active meter", Query: a.Format()}
	}

	res := Resolution{Candidates: candidates, Availability: &avail}
	if len(candidates) > 1 {
		res.Status = StatusDisambiguation
		return res, nil
	}

	only := candidates[0]
	u, src := r.fetchUsage(ctx, only.ESIID)
	res.Status = StatusConfirmed
	res.Confirmed = &only
	res.Usage = &u
	res.UsageSource = src
	return res, nil
}

// fetchUsage never fails: a missing or malformed history falls back to the
// default profile.
func (r *Resolver) fetchUsage(ctx context.Context, esiid string) (pricing.Usage, UsageSource) {
	if r.usage == nil {
		return pricing.DefaultUsage, UsageDefault
	}
	vals, err := r.usage.UsageProfile(ctx, esiid)
	if err != nil {
		r.log.Warn("usage lookup failed, using default profile", zap.String("esiid", esiid), zap.Error(err))
		return pricing.DefaultUsage, UsageDefault
	}
	u, err := pricing.FromSlice(vals)
	if err != nil || u.Total() == 0 {
		r.log.Warn("usage history unusable, using default profile", zap.String("esiid", esiid), zap.Error(err))
		return pricing.DefaultUsage, UsageDefault
	}
	return u, UsageFromHistory
}

func (r *Resolver) observe(res Resolution, err error) {
	outcome := string(res.Status)
	switch {
	case err != nil:
		outcome = string(failureStatus(err))
		if outcome == string(StatusIdle) {
			outcome = "error"
		}
	case res.Status == StatusConfirmed && len(res.Candidates) > 1:
		outcome = "disambiguated"
	}
	metrics.ResolutionOutcomesTotal.WithLabelValues(outcome).Inc()
}

func failureStatus(err error) Status {
	var nf *faults.NotFoundError
	if errors.As(err, &nf) {
		return StatusNotFound
	}
	return StatusIdle
}

func wrapUpstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if faults.Retryable(err) {
		return err
	}
	return &faults.UpstreamError{Op: op, Err: err}
}

func anyActive(candidates []upstream.MeterCandidate) bool {
	for _, m := range candidates {
		if m.Active() {
			return true
		}
	}
	return false
}
