package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bher20/movein/internal/address"
	"github.com/bher20/movein/internal/checkout"
	"github.com/bher20/movein/internal/documents"
	"github.com/bher20/movein/internal/eligibility"
	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

// StateResponse is the wizard state returned by every checkout endpoint.
type StateResponse struct {
	checkout.State
	SessionToken     string                                         `json:"sessionToken"`
	StepName         string                                         `json:"stepName"`
	WaterEligibility eligibility.WaterEligibility                   `json:"waterEligibility,omitempty"`
	Included         []providers.ServiceType                        `json:"included"`
	VisiblePlans     map[providers.ServiceType][]pricing.RankedPlan `json:"visiblePlans"`
}

func newStateResponse(c *checkout.Controller) StateResponse {
	s := c.Snapshot()
	resp := StateResponse{
		State:            s,
		SessionToken:     c.Token(),
		StepName:         s.Step.String(),
		WaterEligibility: s.WaterEligibility(),
		Included:         s.IncludedServices(),
		VisiblePlans:     make(map[providers.ServiceType][]pricing.RankedPlan, len(s.Plans)),
	}
	for svc, ranked := range s.Plans {
		resp.VisiblePlans[svc] = pricing.Visible(ranked, s.ShowAll[svc])
	}
	return resp
}

// action wraps a state-changing operation: decode, run, answer with the new
// state or the mapped error.
func action[T any](fn func(r *http.Request, c *checkout.Controller, body T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := controllerFrom(r)
		var body T
		if err := decode(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if err := fn(r, c, body); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newStateResponse(c))
	}
}

func serviceParam(r *http.Request) (providers.ServiceType, error) {
	svc := providers.ServiceType(r.PathValue("service"))
	if !svc.Valid() {
		return "", faults.NewValidation("service", "unknown service type")
	}
	return svc, nil
}

type (
	textBody struct {
		Text string `json:"text"`
	}
	suggestionBody struct {
		Suggestion upstream.AddressResult `json:"suggestion"`
	}
	addressBody struct {
		Address address.Address `json:"address"`
	}
	dateBody struct {
		Date string `json:"date"`
	}
	esiidBody struct {
		ESIID string `json:"esiid"`
	}
	homeBody struct {
		DwellingType *string `json:"dwellingType"`
		Ownership    *string `json:"ownership"`
		WaterAnswer  *string `json:"waterAnswer"`
		Tenure       *string `json:"tenure"`
		Override     *bool   `json:"override"`
	}
	toggleBody struct {
		On bool `json:"on"`
	}
	planBody struct {
		PlanID string `json:"planId"`
	}
	usageBody struct {
		Preset  string   `json:"preset"`
		Average *float64 `json:"average"`
	}
	stepBody struct {
		Step int `json:"step"`
	}
	answersBody struct {
		Answers map[string]string `json:"answers"`
	}
	termsBody struct {
		Accepted bool `json:"accepted"`
	}
	none struct{}
)

func registerCheckoutRoutes(route func(pattern string, h http.Handler)) {
	route("GET /api/checkout", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newStateResponse(controllerFrom(r)))
	}))

	// Step 1: address.
	route("POST /api/checkout/address/type", action(func(r *http.Request, c *checkout.Controller, b textBody) error {
		return c.TypeAddress(b.Text)
	}))
	route("POST /api/checkout/address/search", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b textBody
		if err := decode(r, &b); err != nil {
			writeError(w, err)
			return
		}
		res, err := controllerFrom(r).SearchAddress(r.Context(), b.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": res})
	}))
	route("POST /api/checkout/address/select", action(func(r *http.Request, c *checkout.Controller, b suggestionBody) error {
		return c.SelectSuggestion(r.Context(), b.Suggestion)
	}))
	route("PUT /api/checkout/address", action(func(r *http.Request, c *checkout.Controller, b addressBody) error {
		return c.SetAddress(b.Address)
	}))
	route("POST /api/checkout/address/resolve", action(func(r *http.Request, c *checkout.Controller, _ none) error {
		return c.ResolveAddress(r.Context())
	}))
	route("POST /api/checkout/address/change", action(func(r *http.Request, c *checkout.Controller, _ none) error {
		return c.ChangeAddress()
	}))
	route("POST /api/checkout/move-in", action(func(r *http.Request, c *checkout.Controller, b dateBody) error {
		d, err := time.Parse(checkout.DateLayout, strings.TrimSpace(b.Date))
		if err != nil {
			return faults.NewValidation("moveInDate", "use the format YYYY-MM-DD")
		}
		return c.SetMoveInDate(d)
	}))
	route("POST /api/checkout/meter/select", action(func(r *http.Request, c *checkout.Controller, b esiidBody) error {
		return c.SelectCandidate(b.ESIID)
	}))
	route("POST /api/checkout/meter/confirm", action(func(r *http.Request, c *checkout.Controller, _ none) error {
		return c.ConfirmCandidate(r.Context())
	}))

	// Step 2: home.
	route("POST /api/checkout/home", action(func(r *http.Request, c *checkout.Controller, b homeBody) error {
		steps := []struct {
			v  *string
			fn func(string) error
		}{
			{b.DwellingType, c.SetDwellingType},
			{b.Ownership, c.SetOwnership},
			{b.WaterAnswer, c.AnswerWaterQuestion},
			{b.Tenure, c.SetTenure},
		}
		for _, st := range steps {
			if st.v == nil {
				continue
			}
			if err := st.fn(*st.v); err != nil {
				return err
			}
		}
		if b.Override != nil {
			return c.SetOverride(*b.Override)
		}
		return nil
	}))

	// Step 3: services and plans.
	route("POST /api/checkout/services/{service}", action(func(r *http.Request, c *checkout.Controller, b toggleBody) error {
		svc, err := serviceParam(r)
		if err != nil {
			return err
		}
		return c.ToggleService(svc, b.On)
	}))
	route("POST /api/checkout/plans/{service}/load", action(func(r *http.Request, c *checkout.Controller, _ none) error {
		svc, err := serviceParam(r)
		if err != nil {
			return err
		}
		return c.LoadPlans(r.Context(), svc)
	}))
	route("POST /api/checkout/plans/{service}/select", action(func(r *http.Request, c *checkout.Controller, b planBody) error {
		svc, err := serviceParam(r)
		if err != nil {
			return err
		}
		return c.SelectPlan(svc, b.PlanID)
	}))
	route("POST /api/checkout/plans/{service}/show-all", action(func(r *http.Request, c *checkout.Controller, b toggleBody) error {
		svc, err := serviceParam(r)
		if err != nil {
			return err
		}
		return c.SetShowAllPlans(svc, b.On)
	}))
	route("POST /api/checkout/usage", action(func(r *http.Request, c *checkout.Controller, b usageBody) error {
		switch {
		case b.Preset != "":
			return c.ApplyUsagePreset(b.Preset)
		case b.Average != nil:
			return c.SetUsageScale(*b.Average)
		}
		return faults.NewValidation("usage", "give a preset or an average")
	}))

	// Navigation.
	route("POST /api/checkout/advance", action(func(r *http.Request, c *checkout.Controller, _ none) error {
		return c.Advance()
	}))
	route("POST /api/checkout/back", action(func(r *http.Request, c *checkout.Controller, _ none) error {
		return c.Retreat()
	}))
	route("POST /api/checkout/jump", action(func(r *http.Request, c *checkout.Controller, b stepBody) error {
		return c.JumpTo(checkout.Step(b.Step))
	}))
	route("POST /api/checkout/reset", action(func(r *http.Request, c *checkout.Controller, _ none) error {
		return c.Reset()
	}))

	// Step 4: review.
	route("POST /api/checkout/questions/load", action(func(r *http.Request, c *checkout.Controller, _ none) error {
		return c.LoadQuestions(r.Context())
	}))
	route("POST /api/checkout/answers", action(func(r *http.Request, c *checkout.Controller, b answersBody) error {
		v := &faults.ValidationError{}
		for id, value := range b.Answers {
			if err := c.SetAnswer(id, value); err != nil {
				v.Add("answers."+id, "unknown question")
			}
		}
		return v.OrNil()
	}))
	route("POST /api/checkout/terms", action(func(r *http.Request, c *checkout.Controller, b termsBody) error {
		return c.AcceptTerms(b.Accepted)
	}))
	route("POST /api/checkout/documents/{id}", http.HandlerFunc(handleUpload))
	route("POST /api/checkout/submit", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conf, err := controllerFrom(r).Submit(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, conf)
	}))
}

// handleUpload accepts a multipart form with a "file" part.
func handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, documents.MaxSize+1<<20)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, faults.NewValidation("file", "attach the document as form field \"file\""))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, documents.MaxSize+1))
	if err != nil {
		writeError(w, faults.NewValidation("file", "the upload could not be read"))
		return
	}

	c := controllerFrom(r)
	doc, err := c.UploadDocument(r.Context(), r.PathValue("id"), hdr.Filename, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
