package checkout

import (
	"time"

	"github.com/bher20/movein/internal/address"
	"github.com/bher20/movein/internal/eligibility"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

// Step is a wizard page, 1 through 5.
type Step int

const (
	StepAddress Step = iota + 1
	StepHome
	StepServices
	StepReview
	StepConfirmation
)

func (s Step) String() string {
	switch s {
	case StepAddress:
		return "address"
	case StepHome:
		return "home"
	case StepServices:
		return "services"
	case StepReview:
		return "review"
	case StepConfirmation:
		return "confirmation"
	}
	return "unknown"
}

// DocumentStatus is the upload state of one required document.
type DocumentStatus string

const (
	DocumentUploading DocumentStatus = "uploading"
	DocumentUploaded  DocumentStatus = "uploaded"
	DocumentError     DocumentStatus = "error"
)

// Document is one upload. Its content stays in the controller; the state
// only carries the metadata.
type Document struct {
	RequirementID string         `json:"requirementId"`
	Name          string         `json:"name"`
	Size          int64          `json:"size"`
	ContentType   string         `json:"contentType,omitempty"`
	Status        DocumentStatus `json:"status"`
	Ref           string         `json:"ref,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// ServiceStatus is the provisioning status of an ordered service.
type ServiceStatus string

const StatusProcessing ServiceStatus = "processing"

// OrderedService is one entry of a confirmation.
type OrderedService struct {
	Service            providers.ServiceType `json:"service"`
	Provider           string                `json:"provider"`
	PlanID             string                `json:"planId"`
	PlanName           string                `json:"planName"`
	Status             ServiceStatus         `json:"status"`
	EarliestActivation time.Time             `json:"earliestActivation"`
}

// OrderConfirmation is created once per successful submission and never
// changed afterwards.
type OrderConfirmation struct {
	OrderID    string           `json:"orderId"`
	Reference  string           `json:"reference,omitempty"`
	Address    address.Address  `json:"address"`
	MoveInDate time.Time        `json:"moveInDate"`
	Services   []OrderedService `json:"services"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// State is the whole wizard state of one session. Values handed out by the
// controller are deep copies.
type State struct {
	Step       Step `json:"step"`
	MaxReached Step `json:"maxReached"`

	// Address step.
	Query        string                   `json:"query"`
	Suggestions  []upstream.AddressResult `json:"suggestions,omitempty"`
	Address      address.Address          `json:"address"`
	MoveInDate   time.Time                `json:"moveInDate,omitempty"`
	Resolution   address.Resolution       `json:"resolution"`
	PendingESIID string                   `json:"pendingEsiid,omitempty"`
	Resolving    bool                     `json:"resolving"`

	// Home step.
	Eligibility eligibility.Decision `json:"eligibility"`

	// Services step.
	Usage         *pricing.Usage                                 `json:"usage,omitempty"`
	UsageSource   string                                         `json:"usageSource,omitempty"`
	Selected      map[providers.ServiceType]bool                 `json:"selected"`
	Plans         map[providers.ServiceType][]pricing.RankedPlan `json:"plans,omitempty"`
	SelectedPlans map[providers.ServiceType]string               `json:"selectedPlans"`
	ShowAll       map[providers.ServiceType]bool                 `json:"showAll,omitempty"`
	LoadingPlans  map[providers.ServiceType]bool                 `json:"loadingPlans,omitempty"`

	// Review step.
	ProviderSteps []upstream.ProviderStep `json:"providerSteps,omitempty"`
	Answers       map[string]string       `json:"-"`
	Documents     map[string]Document     `json:"documents"`
	TermsAccepted bool                    `json:"termsAccepted"`
	Submitting    bool                    `json:"submitting"`

	Confirmation *OrderConfirmation `json:"confirmation,omitempty"`

	// LastError is the plain-language message of the latest failed
	// asynchronous operation.
	LastError string `json:"lastError,omitempty"`
	// Generation changes on every address replacement; async results
	// started under an older generation are dropped.
	Generation uint64 `json:"generation"`
}

func initialState(mode eligibility.Mode) State {
	return State{
		Step:          StepAddress,
		MaxReached:    StepAddress,
		Resolution:    address.Resolution{Status: address.StatusIdle},
		Eligibility:   eligibility.New(mode),
		Selected:      map[providers.ServiceType]bool{providers.ServiceWater: true},
		Plans:         map[providers.ServiceType][]pricing.RankedPlan{},
		SelectedPlans: map[providers.ServiceType]string{},
		ShowAll:       map[providers.ServiceType]bool{},
		LoadingPlans:  map[providers.ServiceType]bool{},
		Answers:       map[string]string{},
		Documents:     map[string]Document{},
	}
}

// clone returns a deep copy of s.
func (s State) clone() State {
	out := s
	out.Suggestions = append([]upstream.AddressResult(nil), s.Suggestions...)
	out.Resolution = cloneResolution(s.Resolution)
	if s.Usage != nil {
		u := *s.Usage
		out.Usage = &u
	}
	out.Selected = copyMap(s.Selected)
	out.ShowAll = copyMap(s.ShowAll)
	out.LoadingPlans = copyMap(s.LoadingPlans)
	out.SelectedPlans = copyMap(s.SelectedPlans)
	out.Plans = make(map[providers.ServiceType][]pricing.RankedPlan, len(s.Plans))
	for k, v := range s.Plans {
		out.Plans[k] = append([]pricing.RankedPlan(nil), v...)
	}
	out.ProviderSteps = cloneSteps(s.ProviderSteps)
	out.Answers = copyMap(s.Answers)
	out.Documents = copyMap(s.Documents)
	if s.Confirmation != nil {
		c := *s.Confirmation
		c.Services = append([]OrderedService(nil), s.Confirmation.Services...)
		out.Confirmation = &c
	}
	return out
}

func cloneResolution(r address.Resolution) address.Resolution {
	out := r
	out.Candidates = append([]upstream.MeterCandidate(nil), r.Candidates...)
	if r.Confirmed != nil {
		c := *r.Confirmed
		out.Confirmed = &c
	}
	if r.Availability != nil {
		a := *r.Availability
		a.Services = append([]providers.ServiceType(nil), r.Availability.Services...)
		out.Availability = &a
	}
	if r.Usage != nil {
		u := *r.Usage
		out.Usage = &u
	}
	return out
}

func cloneSteps(steps []upstream.ProviderStep) []upstream.ProviderStep {
	if steps == nil {
		return nil
	}
	out := make([]upstream.ProviderStep, len(steps))
	for i, st := range steps {
		st.Questions = append([]upstream.Question(nil), st.Questions...)
		for j := range st.Questions {
			st.Questions[j].Options = append([]string(nil), st.Questions[j].Options...)
		}
		st.Documents = append([]upstream.DocumentRequirement(nil), st.Documents...)
		st.Vendor.Services = append([]providers.ServiceType(nil), st.Vendor.Services...)
		out[i] = st
	}
	return out
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WaterEligibility is the displayed water eligibility, override applied.
// Empty while a home question is still open.
func (s State) WaterEligibility() eligibility.WaterEligibility {
	return eligibility.Effective(s.Eligibility)
}

// Selectable reports whether svc can currently be picked.
func (s State) Selectable(svc providers.ServiceType) bool {
	if svc == providers.ServiceWater {
		e := s.WaterEligibility()
		return e == eligibility.WaterRequired || e == eligibility.WaterOptional
	}
	if s.Resolution.Availability == nil {
		return false
	}
	return s.Resolution.Availability.Has(svc)
}

// Included reports whether svc is part of the order. Required water is
// always included; optional water is included once a plan was chosen.
func (s State) Included(svc providers.ServiceType) bool {
	if svc == providers.ServiceWater {
		switch s.WaterEligibility() {
		case eligibility.WaterRequired:
			return true
		case eligibility.WaterOptional:
			return s.SelectedPlans[svc] != ""
		}
		return false
	}
	return s.Selected[svc] && s.Selectable(svc)
}

// IncludedServices lists the included services in display order.
func (s State) IncludedServices() []providers.ServiceType {
	var out []providers.ServiceType
	for _, svc := range providers.Services {
		if s.Included(svc) {
			out = append(out, svc)
		}
	}
	return out
}

// Question finds a provider question by id.
func (s State) Question(id string) (upstream.Question, bool) {
	for _, st := range s.ProviderSteps {
		for _, q := range st.Questions {
			if q.ID == id {
				return q, true
			}
		}
	}
	return upstream.Question{}, false
}

// Requirement finds a document requirement by id.
func (s State) Requirement(id string) (upstream.DocumentRequirement, bool) {
	for _, st := range s.ProviderSteps {
		for _, d := range st.Documents {
			if d.ID == id {
				return d, true
			}
		}
	}
	return upstream.DocumentRequirement{}, false
}
