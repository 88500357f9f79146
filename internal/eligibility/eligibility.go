package eligibility

import "fmt"

// DwellingType is the coarse housing category of the new address.
type DwellingType string

const (
	DwellingSingleFamily DwellingType = "single_family"
	DwellingTownhouse    DwellingType = "townhouse"
	DwellingMultiUnit    DwellingType = "multi_unit"
	DwellingApartment    DwellingType = "apartment"
	DwellingUnknown      DwellingType = "unknown"
)

// OwnershipStatus is whether the customer owns or rents the dwelling.
type OwnershipStatus string

const (
	OwnershipOwner   OwnershipStatus = "owner"
	OwnershipRenter  OwnershipStatus = "renter"
	OwnershipUnknown OwnershipStatus = "unknown"
)

// WaterEligibility says whether the customer has to set up water service.
type WaterEligibility string

const (
	WaterRequired      WaterEligibility = "required"
	WaterOptional      WaterEligibility = "optional"
	WaterNotApplicable WaterEligibility = "not_applicable"
)

// Question is the follow-up that must be answered before a verdict exists.
type Question string

const (
	QuestionNone         Question = ""
	QuestionDwellingType Question = "dwelling_type"
	QuestionOwnership    Question = "ownership"
	QuestionWater        Question = "water_needed"
	QuestionTenure       Question = "rent_or_own"
)

// Verdict is the outcome of a decision. When Blocking is set, Eligibility is
// empty and the named question has to be answered first.
type Verdict struct {
	Eligibility WaterEligibility `json:"eligibility,omitempty"`
	Blocking    Question         `json:"blocking,omitempty"`
}

// Blocked reports whether another answer is needed.
func (v Verdict) Blocked() bool { return v.Blocking != QuestionNone }

// ParseDwellingType maps a wire value onto a DwellingType. Empty input means
// unknown.
func ParseDwellingType(raw string) (DwellingType, error) {
	switch d := DwellingType(raw); d {
	case DwellingSingleFamily, DwellingTownhouse, DwellingMultiUnit, DwellingApartment, DwellingUnknown:
		return d, nil
	case "":
		return DwellingUnknown, nil
	}
	return "", fmt.Errorf("unknown dwelling type %q", raw)
}

// ParseOwnership maps a wire value onto an OwnershipStatus. Empty input means
// unknown.
func ParseOwnership(raw string) (OwnershipStatus, error) {
	switch o := OwnershipStatus(raw); o {
	case OwnershipOwner, OwnershipRenter, OwnershipUnknown:
		return o, nil
	case "":
		return OwnershipUnknown, nil
	}
	return "", fmt.Errorf("unknown ownership status %q", raw)
}

// Evaluate applies the dwelling/ownership table. It is total: every pair
// yields either an eligibility or exactly one blocking question.
//
//	single_family, townhouse  any      -> required
//	multi_unit                owner    -> required
//	multi_unit                renter   -> not_applicable
//	multi_unit                unknown  -> ask ownership
//	apartment                 any      -> not_applicable
//	unknown                   any      -> ask dwelling type
func Evaluate(d DwellingType, o OwnershipStatus) Verdict {
	switch d {
	case DwellingSingleFamily, DwellingTownhouse:
		return Verdict{Eligibility: WaterRequired}
	case DwellingMultiUnit:
		switch o {
		case OwnershipOwner:
			return Verdict{Eligibility: WaterRequired}
		case OwnershipRenter:
			return Verdict{Eligibility: WaterNotApplicable}
		default:
			return Verdict{Blocking: QuestionOwnership}
		}
	case DwellingApartment:
		return Verdict{Eligibility: WaterNotApplicable}
	default:
		return Verdict{Blocking: QuestionDwellingType}
	}
}

// Display is the eligibility used for showing and selecting water. An
// override turns not_applicable into optional; the stored verdict is never
// rewritten.
func Display(v Verdict, override bool) WaterEligibility {
	if v.Blocked() {
		return ""
	}
	if v.Eligibility == WaterNotApplicable && override {
		return WaterOptional
	}
	return v.Eligibility
}
