package checkout

import (
	"context"

	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

// ToggleService includes or excludes a service. Water cannot be switched
// off; its inclusion follows eligibility. Excluding a service drops its plan.
func (c *Controller) ToggleService(svc providers.ServiceType, on bool) error {
	if !svc.Valid() {
		return faults.NewValidation("service", "unknown service type")
	}
	if svc == providers.ServiceWater {
		if !on {
			return faults.NewValidation("service", "water follows your home details and cannot be switched off")
		}
		return nil
	}
	return c.edit(func(s *State) error {
		if on && !s.Selectable(svc) {
			return faults.NewValidation("service", string(svc)+" is not available at this address")
		}
		s.Selected[svc] = on
		if !on {
			delete(s.SelectedPlans, svc)
		}
		return nil
	})
}

// LoadPlans fetches and ranks the catalog of svc for the current address.
// A selection that is still in the new catalog is kept, otherwise cleared.
func (c *Controller) LoadPlans(ctx context.Context, svc providers.ServiceType) error {
	if !svc.Valid() {
		return faults.NewValidation("service", "unknown service type")
	}
	var (
		q     upstream.CatalogQuery
		usage pricing.Usage
		gen   uint64
	)
	if err := c.edit(func(s *State) error {
		if s.Address.IsZero() {
			return faults.ErrNoAddress
		}
		if !s.Selectable(svc) {
			return faults.NewValidation("service", string(svc)+" is not available at this address")
		}
		usage = currentUsage(s)
		q = upstream.CatalogQuery{Service: svc, Zip: s.Address.Zip}
		if svc.UsageBased() {
			q.Usage = usage[:]
		}
		s.LoadingPlans[svc] = true
		s.LastError = ""
		gen = s.Generation
		return nil
	}); err != nil {
		return err
	}

	plans, ferr := c.deps.Catalog.GetPlans(ctx, q)
	if err := c.commitAsync(gen, func(s *State) error {
		delete(s.LoadingPlans, svc)
		if ferr != nil {
			s.LastError = faults.UserMessage(ferr)
			return nil
		}
		// Pricing uses the usage of the moment of commit, which a preset
		// may have changed while the catalog loaded.
		ranked := pricing.Rank(plans, currentUsage(s))
		s.Plans[svc] = ranked
		if id := pricing.Reconcile(ranked, s.SelectedPlans[svc]); id == "" {
			delete(s.SelectedPlans, svc)
		}
		return nil
	}); err != nil {
		return err
	}
	return ferr
}

// SelectPlan picks a plan by id for svc. Selecting a plan includes the
// service.
func (c *Controller) SelectPlan(svc providers.ServiceType, id string) error {
	return c.edit(func(s *State) error {
		if !s.Selectable(svc) {
			return faults.NewValidation("plans."+string(svc), string(svc)+" cannot be selected")
		}
		if _, ok := pricing.Find(s.Plans[svc], id); !ok {
			return faults.NewValidation("plans."+string(svc), "unknown plan")
		}
		s.SelectedPlans[svc] = id
		if svc != providers.ServiceWater {
			s.Selected[svc] = true
		}
		return nil
	})
}

// ApplyUsagePreset replaces the usage profile with a preset and reprices.
func (c *Controller) ApplyUsagePreset(name string) error {
	u, err := pricing.PresetUsage(pricing.Preset(name))
	if err != nil {
		return faults.NewValidation("preset", err.Error())
	}
	return c.edit(func(s *State) error {
		setUsage(s, u, "preset:"+name)
		return nil
	})
}

// SetUsageScale rescales the profile to an average monthly kWh, keeping
// the seasonal shape, and reprices. It is the slider commit.
func (c *Controller) SetUsageScale(avgKWh float64) error {
	return c.edit(func(s *State) error {
		u, err := pricing.ScaleTo(currentUsage(s), avgKWh)
		if err != nil {
			return faults.NewValidation("usage", err.Error())
		}
		setUsage(s, u, "custom")
		return nil
	})
}

func setUsage(s *State, u pricing.Usage, source string) {
	s.Usage = &u
	s.UsageSource = source
	rerankPlans(s)
}

// SetShowAllPlans toggles "view all" for svc.
func (c *Controller) SetShowAllPlans(svc providers.ServiceType, on bool) error {
	if !svc.Valid() {
		return faults.NewValidation("service", "unknown service type")
	}
	return c.edit(func(s *State) error {
		s.ShowAll[svc] = on
		return nil
	})
}

// VisiblePlans returns the ranked plans shown for svc.
func (c *Controller) VisiblePlans(svc providers.ServiceType) []pricing.RankedPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return pricing.Visible(c.state.Plans[svc], c.state.ShowAll[svc])
}

func currentUsage(s *State) pricing.Usage {
	if s.Usage != nil {
		return *s.Usage
	}
	return pricing.DefaultUsage
}

// rerankPlans reprices every loaded catalog after a usage change, the same
// way LoadPlans priced it. Selections are keyed by plan id and survive when
// the id does.
func rerankPlans(s *State) {
	u := currentUsage(s)
	for svc, ranked := range s.Plans {
		s.Plans[svc] = pricing.Rerank(ranked, u)
		if pricing.Reconcile(s.Plans[svc], s.SelectedPlans[svc]) == "" {
			delete(s.SelectedPlans, svc)
		}
	}
}
