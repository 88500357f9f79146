package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bher20/movein/internal/address"
	"github.com/bher20/movein/internal/eligibility"
	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

// clearDownstream drops everything derived from the address in one step:
// meter candidates, the confirmed meter, usage, home details, availability
// and the catalogs priced for the old address. Answers and uploaded
// documents are kept.
func (c *Controller) clearDownstream(s *State) {
	s.Generation++
	s.Resolution = address.Resolution{Status: address.StatusIdle}
	s.PendingESIID = ""
	s.Resolving = false
	s.Eligibility = eligibility.New(c.mode)
	s.Usage = nil
	s.UsageSource = ""
	s.Plans = map[providers.ServiceType][]pricing.RankedPlan{}
	s.SelectedPlans = map[providers.ServiceType]string{}
	s.ShowAll = map[providers.ServiceType]bool{}
	s.LoadingPlans = map[providers.ServiceType]bool{}
	s.ProviderSteps = nil
	s.LastError = ""
	s.MaxReached = StepAddress
}

// SetAddress replaces the address wholesale and clears all derived state.
func (c *Controller) SetAddress(a address.Address) error {
	a.Street = strings.TrimSpace(a.Street)
	a.Zip = strings.TrimSpace(a.Zip)
	v := &faults.ValidationError{}
	if a.Street == "" {
		v.Add("street", "street is required")
	}
	if a.Zip == "" {
		v.Add("zip", "zip code is required")
	}
	if err := v.OrNil(); err != nil {
		return err
	}
	if a.Formatted == "" {
		a.Formatted = a.Format()
	}
	return c.edit(func(s *State) error {
		c.clearDownstream(s)
		s.Address = a
		s.Suggestions = nil
		return nil
	})
}

// ChangeAddress is the explicit "change address" edit: derived state is
// cleared, the typed query is kept and the wizard returns to step 1.
func (c *Controller) ChangeAddress() error {
	return c.edit(func(s *State) error {
		if s.Confirmation != nil {
			return faults.NewValidation("address", "the order was already placed")
		}
		c.clearDownstream(s)
		s.Address = address.Address{}
		s.Step = StepAddress
		return nil
	})
}

// SetMoveInDate sets the move-in date. Dates before today are rejected.
func (c *Controller) SetMoveInDate(t time.Time) error {
	if t.IsZero() {
		return faults.NewValidation("moveInDate", "choose a move-in date")
	}
	today := c.today()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, today.Location())
	if day.Before(today) {
		return faults.NewValidation("moveInDate", "move-in date cannot be in the past")
	}
	return c.edit(func(s *State) error {
		s.MoveInDate = day
		return nil
	})
}

// TypeAddress records typed text and schedules a debounced search. Results
// for superseded text are never applied. Subscribers notified from the
// search must not call TypeAddress themselves.
func (c *Controller) TypeAddress(text string) error {
	if err := c.edit(func(s *State) error {
		s.Query = text
		if len(strings.TrimSpace(text)) < address.MinQueryLen {
			s.Suggestions = nil
		}
		return nil
	}); err != nil {
		return err
	}
	if c.deps.Searcher == nil {
		return nil
	}
	c.deps.Searcher.Type(text, func(r address.SearchResult) {
		_ = c.update(func(s *State) error {
			if r.Err != nil {
				s.LastError = faults.UserMessage(r.Err)
				return nil
			}
			s.Suggestions = r.Suggestions
			return nil
		})
	})
	return nil
}

// SearchAddress searches immediately. A result superseded by newer input
// returns faults.ErrStale and is not applied.
func (c *Controller) SearchAddress(ctx context.Context, text string) ([]upstream.AddressResult, error) {
	if c.deps.Searcher == nil {
		return nil, errors.New("address search is not configured")
	}
	if err := c.edit(func(s *State) error { s.Query = text; return nil }); err != nil {
		return nil, err
	}
	res, err := c.deps.Searcher.Search(ctx, text)
	if err != nil {
		return nil, err
	}
	err = c.update(func(s *State) error {
		s.Suggestions = res
		return nil
	})
	return res, err
}

// SelectSuggestion takes a search suggestion as the new address and
// resolves its meter.
func (c *Controller) SelectSuggestion(ctx context.Context, r upstream.AddressResult) error {
	if err := c.SetAddress(address.FromResult(r)); err != nil {
		return err
	}
	return c.ResolveAddress(ctx)
}

// ResolveAddress resolves the meter of the current address. It is also the
// retry action after a failed resolution.
func (c *Controller) ResolveAddress(ctx context.Context) error {
	var (
		a   address.Address
		gen uint64
	)
	if err := c.edit(func(s *State) error {
		if s.Address.IsZero() {
			return faults.ErrNoAddress
		}
		s.Resolving = true
		s.LastError = ""
		a, gen = s.Address, s.Generation
		return nil
	}); err != nil {
		return err
	}

	res, rerr := c.deps.Resolver.Resolve(ctx, a)
	if err := c.commitAsync(gen, func(s *State) error {
		s.Resolving = false
		if rerr != nil {
			s.LastError = faults.UserMessage(rerr)
			var nf *faults.NotFoundError
			if errors.As(rerr, &nf) {
				// Nothing but the typed text survives a miss.
				s.Resolution = address.Resolution{Status: address.StatusNotFound}
				s.Address = address.Address{}
			}
			return nil
		}
		applyResolution(s, res)
		return nil
	}); err != nil {
		return err
	}
	return rerr
}

func applyResolution(s *State, res address.Resolution) {
	s.Resolution = res
	s.PendingESIID = ""
	if res.Confirmed != nil {
		s.Address.ESIID = res.Confirmed.ESIID
	}
	if res.Usage != nil {
		u := *res.Usage
		s.Usage = &u
		s.UsageSource = string(res.UsageSource)
		rerankPlans(s)
	}
}

// SelectCandidate marks a disambiguation candidate. Inactive meters are
// listed but cannot be picked.
func (c *Controller) SelectCandidate(esiid string) error {
	return c.edit(func(s *State) error {
		if s.Resolution.Status != address.StatusDisambiguation {
			return faults.NewValidation("esiid", "no meter choice is pending")
		}
		for _, m := range s.Resolution.Candidates {
			if m.ESIID != esiid {
				continue
			}
			if !m.Active() {
				return &faults.ValidationError{Fields: map[string]string{"esiid": faults.ErrNotSelectable.Error()}}
			}
			s.PendingESIID = esiid
			return nil
		}
		return faults.NewValidation("esiid", "unknown meter")
	})
}

// ConfirmCandidate confirms the selected candidate and loads its usage.
func (c *Controller) ConfirmCandidate(ctx context.Context) error {
	var (
		cur   address.Resolution
		esiid string
		gen   uint64
	)
	if err := c.edit(func(s *State) error {
		if s.Resolution.Status != address.StatusDisambiguation {
			return faults.NewValidation("esiid", "no meter choice is pending")
		}
		if s.PendingESIID == "" {
			return faults.NewValidation("esiid", "select a meter first")
		}
		s.Resolving = true
		cur, esiid, gen = cloneResolution(s.Resolution), s.PendingESIID, s.Generation
		return nil
	}); err != nil {
		return err
	}

	res, rerr := c.deps.Resolver.Confirm(ctx, cur, esiid)
	if err := c.commitAsync(gen, func(s *State) error {
		s.Resolving = false
		if rerr != nil {
			s.LastError = faults.UserMessage(rerr)
			return nil
		}
		applyResolution(s, res)
		return nil
	}); err != nil {
		return err
	}
	return rerr
}
