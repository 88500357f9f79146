package eligibility

import "testing"

var (
	allDwellings = []DwellingType{DwellingSingleFamily, DwellingTownhouse, DwellingMultiUnit, DwellingApartment, DwellingUnknown}
	allOwnership = []OwnershipStatus{OwnershipOwner, OwnershipRenter, OwnershipUnknown}
)

func TestEvaluate_Table(t *testing.T) {
	cases := []struct {
		d    DwellingType
		o    OwnershipStatus
		want Verdict
	}{
		{DwellingSingleFamily, OwnershipRenter, Verdict{Eligibility: WaterRequired}},
		{DwellingTownhouse, OwnershipUnknown, Verdict{Eligibility: WaterRequired}},
		{DwellingMultiUnit, OwnershipOwner, Verdict{Eligibility: WaterRequired}},
		{DwellingMultiUnit, OwnershipRenter, Verdict{Eligibility: WaterNotApplicable}},
		{DwellingMultiUnit, OwnershipUnknown, Verdict{Blocking: QuestionOwnership}},
		{DwellingApartment, OwnershipOwner, Verdict{Eligibility: WaterNotApplicable}},
		{DwellingUnknown, OwnershipOwner, Verdict{Blocking: QuestionDwellingType}},
	}
	for _, tc := range cases {
		if got := Evaluate(tc.d, tc.o); got != tc.want {
			t.Errorf("Evaluate(%s, %s) = %+v, want %+v", tc.d, tc.o, got, tc.want)
		}
	}
}

func TestEvaluate_TotalAndExclusive(t *testing.T) {
	for _, d := range allDwellings {
		for _, o := range allOwnership {
			v := Evaluate(d, o)
			hasVerdict := v.Eligibility != ""
			if hasVerdict == v.Blocked() {
				t.Errorf("(%s, %s): want exactly one of verdict/blocking, got %+v", d, o, v)
			}
			if v.Eligibility == WaterOptional {
				t.Errorf("(%s, %s): table never yields optional", d, o)
			}
		}
	}
}

func TestApartmentOverride_ScenarioB(t *testing.T) {
	d := DwellingDecision{Dwelling: DwellingApartment, Ownership: OwnershipRenter}
	if got := Effective(d); got != WaterNotApplicable {
		t.Fatalf("apartment should be not_applicable, got %s", got)
	}

	overridden := WithOverride(d, true)
	if got := Effective(overridden); got != WaterOptional {
		t.Fatalf("override should display as optional, got %s", got)
	}
	if got := overridden.Verdict().Eligibility; got != WaterNotApplicable {
		t.Fatalf("stored classification must stay not_applicable, got %s", got)
	}

	reverted := WithOverride(overridden, false)
	if got := Effective(reverted); got != WaterNotApplicable {
		t.Fatalf("turning override off should revert, got %s", got)
	}
}

func TestOverride_NoEffectOnRequired(t *testing.T) {
	d := WithOverride(DwellingDecision{Dwelling: DwellingSingleFamily}, true)
	if got := Effective(d); got != WaterRequired {
		t.Fatalf("override must not downgrade required, got %s", got)
	}
}

func TestLegacyDecision(t *testing.T) {
	cases := []struct {
		answer WaterAnswer
		tenure OwnershipStatus
		want   Verdict
	}{
		{WaterAnswerUnset, OwnershipUnknown, Verdict{Blocking: QuestionWater}},
		{WaterAnswerYes, OwnershipRenter, Verdict{Eligibility: WaterRequired}},
		{WaterAnswerNo, OwnershipOwner, Verdict{Eligibility: WaterNotApplicable}},
		{WaterAnswerNotSure, OwnershipUnknown, Verdict{Blocking: QuestionTenure}},
		{WaterAnswerNotSure, OwnershipOwner, Verdict{Eligibility: WaterRequired}},
		{WaterAnswerNotSure, OwnershipRenter, Verdict{Eligibility: WaterNotApplicable}},
	}
	for _, tc := range cases {
		d := LegacyDecision{Answer: tc.answer, Tenure: tc.tenure}
		if got := d.Verdict(); got != tc.want {
			t.Errorf("legacy(%q, %q) = %+v, want %+v", tc.answer, tc.tenure, got, tc.want)
		}
	}
}

func TestNew_SelectsOneVariant(t *testing.T) {
	if _, ok := New(ModeLegacy).(LegacyDecision); !ok {
		t.Errorf("legacy mode should produce LegacyDecision")
	}
	if _, ok := New(ModeDwelling).(DwellingDecision); !ok {
		t.Errorf("dwelling mode should produce DwellingDecision")
	}
	if v := New(ModeDwelling).Verdict(); v.Blocking != QuestionDwellingType {
		t.Errorf("fresh dwelling decision should ask dwelling type, got %+v", v)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeDwelling {
		t.Fatalf("empty mode should default to dwelling")
	}
	if _, err := ParseMode("both"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
