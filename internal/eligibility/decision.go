package eligibility

import "fmt"

// Mode picks which decision path a session uses. It is fixed when the session
// starts.
type Mode string

const (
	ModeDwelling Mode = "dwelling"
	ModeLegacy   Mode = "legacy"
)

// ParseMode accepts "dwelling" (default when empty) or "legacy".
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeDwelling:
		return ModeDwelling, nil
	case ModeLegacy:
		return ModeLegacy, nil
	}
	return "", fmt.Errorf("unknown eligibility mode %q", raw)
}

// Decision is the water eligibility state of a session. Exactly one variant is
// live per session: DwellingDecision or LegacyDecision.
type Decision interface {
	Mode() Mode
	Verdict() Verdict
	Override() bool
	withOverride(on bool) Decision
}

// New returns the empty decision for mode.
func New(mode Mode) Decision {
	if mode == ModeLegacy {
		return LegacyDecision{Tenure: OwnershipUnknown}
	}
	return DwellingDecision{Dwelling: DwellingUnknown, Ownership: OwnershipUnknown}
}

// WithOverride returns d with the override flag set.
func WithOverride(d Decision, on bool) Decision {
	return d.withOverride(on)
}

// Effective is the display eligibility of d, override applied.
func Effective(d Decision) WaterEligibility {
	return Display(d.Verdict(), d.Override())
}

// DwellingDecision is the dwelling-type/ownership path.
type DwellingDecision struct {
	Dwelling    DwellingType    `json:"dwelling_type"`
	Ownership   OwnershipStatus `json:"ownership"`
	OverrideSet bool            `json:"override"`
}

func (d DwellingDecision) Mode() Mode       { return ModeDwelling }
func (d DwellingDecision) Verdict() Verdict { return Evaluate(d.Dwelling, d.Ownership) }
func (d DwellingDecision) Override() bool   { return d.OverrideSet }

func (d DwellingDecision) withOverride(on bool) Decision {
	d.OverrideSet = on
	return d
}

// WaterAnswer is the reply to the legacy "do you need water service?" question.
type WaterAnswer string

const (
	WaterAnswerUnset   WaterAnswer = ""
	WaterAnswerYes     WaterAnswer = "yes"
	WaterAnswerNo      WaterAnswer = "no"
	WaterAnswerNotSure WaterAnswer = "not_sure"
)

// ParseWaterAnswer validates a legacy water answer.
func ParseWaterAnswer(raw string) (WaterAnswer, error) {
	switch a := WaterAnswer(raw); a {
	case WaterAnswerYes, WaterAnswerNo, WaterAnswerNotSure:
		return a, nil
	}
	return "", fmt.Errorf("unknown water answer %q", raw)
}

// LegacyDecision is the direct water question path. The rent/own follow-up is
// only consulted when the answer is "not sure".
type LegacyDecision struct {
	Answer      WaterAnswer     `json:"water_answer"`
	Tenure      OwnershipStatus `json:"tenure"`
	OverrideSet bool            `json:"override"`
}

func (d LegacyDecision) Mode() Mode     { return ModeLegacy }
func (d LegacyDecision) Override() bool { return d.OverrideSet }

func (d LegacyDecision) Verdict() Verdict {
	switch d.Answer {
	case WaterAnswerYes:
		return Verdict{Eligibility: WaterRequired}
	case WaterAnswerNo:
		return Verdict{Eligibility: WaterNotApplicable}
	case WaterAnswerNotSure:
		switch d.Tenure {
		case OwnershipOwner:
			return Verdict{Eligibility: WaterRequired}
		case OwnershipRenter:
			return Verdict{Eligibility: WaterNotApplicable}
		default:
			return Verdict{Blocking: QuestionTenure}
		}
	default:
		return Verdict{Blocking: QuestionWater}
	}
}

func (d LegacyDecision) withOverride(on bool) Decision {
	d.OverrideSet = on
	return d
}
