package checkout

import (
	"github.com/bher20/movein/internal/eligibility"
	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/pkg/providers"
)

// updateDwelling applies fn to the dwelling decision of the session.
func (c *Controller) updateDwelling(field string, fn func(d *eligibility.DwellingDecision)) error {
	return c.edit(func(s *State) error {
		d, ok := s.Eligibility.(eligibility.DwellingDecision)
		if !ok {
			return faults.NewValidation(field, "not asked in this session")
		}
		fn(&d)
		s.Eligibility = d
		syncWater(s)
		return nil
	})
}

func (c *Controller) updateLegacy(field string, fn func(d *eligibility.LegacyDecision)) error {
	return c.edit(func(s *State) error {
		d, ok := s.Eligibility.(eligibility.LegacyDecision)
		if !ok {
			return faults.NewValidation(field, "not asked in this session")
		}
		fn(&d)
		s.Eligibility = d
		syncWater(s)
		return nil
	})
}

// SetDwellingType answers the dwelling type question.
func (c *Controller) SetDwellingType(raw string) error {
	dt, err := eligibility.ParseDwellingType(raw)
	if err != nil {
		return faults.NewValidation(string(eligibility.QuestionDwellingType), err.Error())
	}
	return c.updateDwelling(string(eligibility.QuestionDwellingType), func(d *eligibility.DwellingDecision) {
		d.Dwelling = dt
	})
}

// SetOwnership answers the ownership question.
func (c *Controller) SetOwnership(raw string) error {
	o, err := eligibility.ParseOwnership(raw)
	if err != nil {
		return faults.NewValidation(string(eligibility.QuestionOwnership), err.Error())
	}
	return c.updateDwelling(string(eligibility.QuestionOwnership), func(d *eligibility.DwellingDecision) {
		d.Ownership = o
	})
}

// AnswerWaterQuestion answers the legacy "do you need water" question.
func (c *Controller) AnswerWaterQuestion(raw string) error {
	a, err := eligibility.ParseWaterAnswer(raw)
	if err != nil {
		return faults.NewValidation(string(eligibility.QuestionWater), err.Error())
	}
	return c.updateLegacy(string(eligibility.QuestionWater), func(d *eligibility.LegacyDecision) {
		d.Answer = a
	})
}

// SetTenure answers the legacy rent-or-own follow-up.
func (c *Controller) SetTenure(raw string) error {
	o, err := eligibility.ParseOwnership(raw)
	if err != nil {
		return faults.NewValidation(string(eligibility.QuestionTenure), err.Error())
	}
	return c.updateLegacy(string(eligibility.QuestionTenure), func(d *eligibility.LegacyDecision) {
		d.Tenure = o
	})
}

// SetOverride shows water as optional although it is classified not
// applicable. The stored classification never changes. Turning the
// override off drops a water plan chosen under it.
func (c *Controller) SetOverride(on bool) error {
	return c.edit(func(s *State) error {
		s.Eligibility = eligibility.WithOverride(s.Eligibility, on)
		syncWater(s)
		return nil
	})
}

// syncWater drops the water plan once water is no longer selectable.
func syncWater(s *State) {
	if !s.Selectable(providers.ServiceWater) {
		delete(s.SelectedPlans, providers.ServiceWater)
	}
}
