package upstream

import (
	"context"
	"time"

	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/pkg/providers"
)

// Meter and premise values used by the address services.
const (
	StatusActive       = "Active"
	PremiseResidential = "Residential"
)

// AddressResult is one suggestion from the address search service.
type AddressResult struct {
	Address     string `json:"address"`
	Unit        string `json:"unit,omitempty"`
	City        string `json:"city"`
	State       string `json:"state"`
	ZipCode     string `json:"zipCode"`
	ESIID       string `json:"esiid,omitempty"`
	PremiseType string `json:"premiseType"`
	Status      string `json:"status"`
	Formatted   string `json:"formatted"`
}

// MeterQuery is the input to a meter identifier search.
type MeterQuery struct {
	Street string
	Zip    string
	Unit   string
}

// MeterCandidate is an ESIID record returned by the meter search.
type MeterCandidate struct {
	ESIID       string `json:"esiid"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
	PremiseType string `json:"premiseType"`
	Status      string `json:"status"`
}

// Active reports whether the meter can be selected.
func (m MeterCandidate) Active() bool { return m.Status == StatusActive }

// AvailabilityQuery identifies the premise whose services are checked.
type AvailabilityQuery struct {
	Street string
	Zip    string
	ESIID  string
}

// Availability lists which services can be provisioned at a premise.
type Availability struct {
	Services []providers.ServiceType `json:"services"`
	// Utility is the local wires company for the meter, when known.
	Utility string `json:"utility,omitempty"`
}

// Has reports whether s is available.
func (a Availability) Has(s providers.ServiceType) bool {
	for _, x := range a.Services {
		if x == s {
			return true
		}
	}
	return false
}

// CatalogQuery selects plans for one service at one zip code. Usage is only
// sent for usage-based services.
type CatalogQuery struct {
	Service providers.ServiceType
	Zip     string
	Usage   []float64
}

// QuestionType is the input kind of a provider question.
type QuestionType string

const (
	QuestionText   QuestionType = "text"
	QuestionSelect QuestionType = "select"
	QuestionDate   QuestionType = "date"
	QuestionSSN    QuestionType = "ssn"
)

// Question is a provider-defined checkout field.
type Question struct {
	ID       string       `json:"id"`
	Prompt   string       `json:"prompt"`
	Type     QuestionType `json:"type"`
	Required bool         `json:"required"`
	Options  []string     `json:"options,omitempty"`
}

// DocumentRequirement is an upload a provider asks for.
type DocumentRequirement struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// ProviderStep groups the questions and documents of one provider.
type ProviderStep struct {
	Provider     string                `json:"provider"`
	Service      providers.ServiceType `json:"service"`
	Vendor       providers.Vendor      `json:"vendor"`
	LeadTimeDays int                   `json:"leadTimeDays"`
	Questions    []Question            `json:"questions"`
	Documents    []DocumentRequirement `json:"documents"`
}

// PlanRef names a selected plan in requests.
type PlanRef struct {
	Service  providers.ServiceType `json:"service"`
	Provider string                `json:"provider"`
	PlanID   string                `json:"planId"`
	PlanName string                `json:"planName,omitempty"`
}

// File is an uploaded document carried in a submission.
type File struct {
	RequirementID string `json:"requirementId"`
	Ref           string `json:"ref"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	ContentType   string `json:"contentType"`
	Content       []byte `json:"content"`
}

// Profile is the customer/address part of a submission.
type Profile struct {
	Street     string    `json:"street"`
	Unit       string    `json:"unit,omitempty"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	Zip        string    `json:"zip"`
	ESIID      string    `json:"esiid,omitempty"`
	MoveInDate time.Time `json:"moveInDate"`
	Dwelling   string    `json:"dwellingType,omitempty"`
	Ownership  string    `json:"ownership,omitempty"`
	Usage      []float64 `json:"usage"`
}

// Payload is the aggregated checkout submission.
type Payload struct {
	SessionToken string            `json:"sessionToken"`
	Profile      Profile           `json:"profile"`
	Plans        []PlanRef         `json:"plans"`
	Answers      map[string]string `json:"answers"`
	Files        []File            `json:"files"`
}

// Receipt is the submission service reply.
type Receipt struct {
	Reference string `json:"reference,omitempty"`
}

// AddressSearcher returns suggestions for free-text address input.
type AddressSearcher interface {
	SearchAddresses(ctx context.Context, query string) ([]AddressResult, error)
}

// MeterSearcher finds meter identifiers for a street address.
type MeterSearcher interface {
	SearchMeters(ctx context.Context, q MeterQuery) ([]MeterCandidate, error)
}

// UsageLookup fetches the 12-month usage history of a meter.
type UsageLookup interface {
	UsageProfile(ctx context.Context, esiid string) ([]float64, error)
}

// AvailabilityChecker reports which services can be provisioned at a premise.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, q AvailabilityQuery) (Availability, error)
}

// CatalogSource lists plans. A rate-limited reply must be returned as a
// *faults.RateLimitError so callers can retry it.
type CatalogSource interface {
	FetchPlans(ctx context.Context, q CatalogQuery) ([]pricing.Plan, error)
}

// QuestionSource returns the checkout schema for the selected plans.
type QuestionSource interface {
	CheckoutSteps(ctx context.Context, plans []PlanRef) ([]ProviderStep, error)
}

// Submitter places the order.
type Submitter interface {
	Submit(ctx context.Context, p Payload) (Receipt, error)
}
