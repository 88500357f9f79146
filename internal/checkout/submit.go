package checkout

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/movein/internal/address"
	"github.com/bher20/movein/internal/eligibility"
	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/logging"
	"github.com/bher20/movein/internal/metrics"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/upstream"
)

// planRefs lists the selected plans of every included service.
func planRefs(s *State) []upstream.PlanRef {
	var out []upstream.PlanRef
	for _, svc := range s.IncludedServices() {
		id := s.SelectedPlans[svc]
		if id == "" {
			continue
		}
		ref := upstream.PlanRef{Service: svc, PlanID: id}
		if p, ok := pricing.Find(s.Plans[svc], id); ok {
			ref.Provider = p.Provider
			ref.PlanName = p.Name
		}
		out = append(out, ref)
	}
	return out
}

// LoadQuestions fetches the provider questions and document requirements
// for the selected plans. Answers and uploads already given are kept.
func (c *Controller) LoadQuestions(ctx context.Context) error {
	var (
		refs []upstream.PlanRef
		gen  uint64
	)
	if err := c.edit(func(s *State) error {
		refs = planRefs(s)
		if len(refs) == 0 {
			return faults.NewValidation("plans", "choose at least one plan")
		}
		s.LastError = ""
		gen = s.Generation
		return nil
	}); err != nil {
		return err
	}

	steps, qerr := c.deps.Questions.CheckoutSteps(ctx, refs)
	if err := c.commitAsync(gen, func(s *State) error {
		if qerr != nil {
			s.LastError = faults.UserMessage(qerr)
			return nil
		}
		if steps == nil {
			steps = []upstream.ProviderStep{}
		}
		s.ProviderSteps = steps
		return nil
	}); err != nil {
		return err
	}
	if qerr != nil && !faults.Retryable(qerr) {
		return &faults.UpstreamError{Op: "checkout schema", Err: qerr}
	}
	return qerr
}

// SetAnswer stores the answer to a provider question. Answers are checked
// when the order is submitted.
func (c *Controller) SetAnswer(id, value string) error {
	return c.edit(func(s *State) error {
		if _, ok := s.Question(id); !ok {
			return faults.NewValidation("answers."+id, "unknown question")
		}
		s.Answers[id] = value
		return nil
	})
}

// AcceptTerms records the terms of service checkbox.
func (c *Controller) AcceptTerms(accepted bool) error {
	return c.edit(func(s *State) error {
		s.TermsAccepted = accepted
		return nil
	})
}

// UploadDocument attaches a file to a document requirement. The document
// is "uploading" while it is inspected and ends as "uploaded" or "error".
func (c *Controller) UploadDocument(ctx context.Context, reqID, name string, data []byte) (Document, error) {
	doc := Document{RequirementID: reqID, Name: name, Size: int64(len(data)), Status: DocumentUploading}
	if err := c.edit(func(s *State) error {
		if _, ok := s.Requirement(reqID); !ok {
			return faults.NewValidation("documents."+reqID, "unknown document")
		}
		s.Documents[reqID] = doc
		return nil
	}); err != nil {
		return Document{}, err
	}

	info, ierr := c.inspect(name, data)
	if ierr == nil {
		ierr = ctx.Err()
	}
	if ierr != nil {
		doc.Status = DocumentError
		doc.Error = ierr.Error()
	} else {
		doc.Status = DocumentUploaded
		doc.ContentType = info.ContentType
		doc.Ref = c.newID()
	}
	if err := c.update(func(s *State) error {
		s.Documents[reqID] = doc
		if doc.Status == DocumentUploaded {
			c.files[reqID] = upstream.File{
				RequirementID: reqID,
				Ref:           doc.Ref,
				Name:          name,
				Size:          doc.Size,
				ContentType:   doc.ContentType,
				Content:       append([]byte(nil), data...),
			}
		} else {
			delete(c.files, reqID)
		}
		return nil
	}); err != nil {
		return doc, err
	}
	if ierr != nil {
		return doc, faults.NewValidation("documents."+reqID, ierr.Error())
	}
	return doc, nil
}

// BuildPayload aggregates the profile, selected plans, answers and uploaded
// files of s into one submission.
func BuildPayload(s State, files map[string]upstream.File) upstream.Payload {
	u := currentUsage(&s)
	p := upstream.Payload{
		Profile: upstream.Profile{
			Street:     s.Address.Street,
			Unit:       s.Address.Unit,
			City:       s.Address.City,
			State:      s.Address.State,
			Zip:        s.Address.Zip,
			ESIID:      s.Address.ESIID,
			MoveInDate: s.MoveInDate,
			Usage:      append([]float64(nil), u[:]...),
		},
		Plans:   planRefs(&s),
		Answers: make(map[string]string, len(s.Answers)),
		Files:   []upstream.File{},
	}
	switch d := s.Eligibility.(type) {
	case eligibility.DwellingDecision:
		p.Profile.Dwelling = string(d.Dwelling)
		p.Profile.Ownership = string(d.Ownership)
	case eligibility.LegacyDecision:
		p.Profile.Ownership = string(d.Tenure)
	}

	ssn := sensitiveQuestions(&s)
	for id, v := range s.Answers {
		v = strings.TrimSpace(v)
		if ssn[id] {
			v = NormalizeSSN(v)
		}
		p.Answers[id] = v
	}

	ids := make([]string, 0, len(s.Documents))
	for id, d := range s.Documents {
		if d.Status == DocumentUploaded {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if f, ok := files[id]; ok {
			p.Files = append(p.Files, f)
		}
	}
	return p
}

// Submit validates the order and places it. On success a new immutable
// confirmation is created from what was sent and the wizard moves to the
// last step. On failure nothing entered is lost and the step does not
// change. Edits are refused with ErrBusy while the order is in flight.
func (c *Controller) Submit(ctx context.Context) (OrderConfirmation, error) {
	var (
		payload upstream.Payload
		ssnIDs  map[string]bool
		addr    address.Address
		steps   []upstream.ProviderStep
	)
	if err := c.update(func(s *State) error {
		if s.Confirmation != nil {
			return faults.NewValidation("order", "the order was already placed")
		}
		if s.Submitting {
			return ErrBusy
		}
		if err := validateSubmission(s); err != nil {
			return err
		}
		s.Submitting = true
		s.LastError = ""
		payload = BuildPayload(*s, c.files)
		ssnIDs = sensitiveQuestions(s)
		addr = s.Address
		steps = append([]upstream.ProviderStep(nil), s.ProviderSteps...)
		return nil
	}); err != nil {
		var v *faults.ValidationError
		if errors.As(err, &v) {
			metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
			c.log.Debug("submission blocked by validation", zap.Error(err))
		}
		return OrderConfirmation{}, err
	}
	payload.SessionToken = c.deps.Identity.Token()

	c.log.Info("submitting order",
		zap.String("session", logging.MaskLast4(payload.SessionToken)),
		zap.Int("plans", len(payload.Plans)),
		zap.Int("files", len(payload.Files)),
		logging.Answers("answers", payload.Answers, ssnIDs),
	)

	receipt, serr := c.deps.Submitter.Submit(ctx, payload)
	if serr != nil {
		return OrderConfirmation{}, c.failSubmission(ctx, serr)
	}

	conf := c.confirmation(payload, addr, steps, receipt)
	_ = c.update(func(s *State) error {
		s.Submitting = false
		stored := conf
		stored.Services = append([]OrderedService(nil), conf.Services...)
		s.Confirmation = &stored
		s.Step = StepConfirmation
		s.MaxReached = StepConfirmation
		return nil
	})
	metrics.SubmissionsTotal.WithLabelValues("ok").Inc()
	c.log.Info("order placed", zap.String("order_id", conf.OrderID), zap.String("reference", conf.Reference))

	snap := c.Snapshot()
	for _, h := range c.onConfirmed {
		h(ctx, conf, snap)
	}
	return conf, nil
}

func (c *Controller) failSubmission(ctx context.Context, serr error) error {
	var rl *faults.RateLimitError
	var up *faults.UpstreamError
	if !errors.As(serr, &rl) && !errors.As(serr, &up) {
		serr = &faults.UpstreamError{Op: "submit", Err: serr}
	}

	err := serr
	_ = c.update(func(s *State) error {
		s.Submitting = false
		var refs []string
		for _, d := range s.Documents {
			if d.Status == DocumentUploaded {
				refs = append(refs, d.Ref)
			}
		}
		if len(refs) > 0 {
			sort.Strings(refs)
			err = &faults.PartialFailure{Err: serr, DocumentRefs: refs}
		}
		s.LastError = faults.UserMessage(err)
		return nil
	})

	result := "error"
	var pf *faults.PartialFailure
	if errors.As(err, &pf) {
		result = "partial_failure"
	}
	metrics.SubmissionsTotal.WithLabelValues(result).Inc()
	c.log.Warn("order submission failed", zap.Error(err))

	snap := c.Snapshot()
	for _, h := range c.onFailure {
		h(ctx, err, snap)
	}
	return err
}

// confirmation lists exactly the plans of the submitted payload.
func (c *Controller) confirmation(p upstream.Payload, a address.Address, steps []upstream.ProviderStep, r upstream.Receipt) OrderConfirmation {
	today := c.today()
	moveIn := p.Profile.MoveInDate
	conf := OrderConfirmation{
		OrderID:    c.newID(),
		Reference:  r.Reference,
		Address:    a,
		MoveInDate: moveIn,
		CreatedAt:  c.now(),
	}
	for _, ref := range p.Plans {
		lead := leadTime(steps, ref)
		conf.Services = append(conf.Services, OrderedService{
			Service:            ref.Service,
			Provider:           ref.Provider,
			PlanID:             ref.PlanID,
			PlanName:           ref.PlanName,
			Status:             StatusProcessing,
			EarliestActivation: EarliestActivation(today, moveIn, lead),
		})
	}
	return conf
}

// leadTime is the longest lead time declared by the provider steps of ref:
// steps for the same service, or service-less steps of the same provider.
func leadTime(steps []upstream.ProviderStep, ref upstream.PlanRef) int {
	lead := 0
	for _, st := range steps {
		match := st.Service == ref.Service || (st.Service == "" && st.Provider == ref.Provider)
		if match && st.LeadTimeDays > lead {
			lead = st.LeadTimeDays
		}
	}
	return lead
}

// AddBusinessDays moves n weekdays forward from t.
func AddBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if t.Weekday() != time.Saturday && t.Weekday() != time.Sunday {
			n--
		}
	}
	return t
}

// EarliestActivation is the later of the move-in date and today plus the
// provider's lead time in business days.
func EarliestActivation(today, moveIn time.Time, leadDays int) time.Time {
	earliest := AddBusinessDays(today, leadDays)
	if moveIn.After(earliest) {
		return moveIn
	}
	return earliest
}
