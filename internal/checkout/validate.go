package checkout

import (
	"errors"
	"strings"
	"time"

	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/upstream"
)

// DateLayout is the wire format of date answers.
const DateLayout = "2006-01-02"

var deniedSSNs = map[string]bool{
	"078051120": true,
	"123456789": true,
}

// Answer validation errors.
var (
	ErrSSNFormat = errors.New("must be 9 digits")
	ErrSSNDenied = errors.New("is not a valid social security number")
)

// NormalizeSSN removes dashes and spaces.
func NormalizeSSN(raw string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(raw)
}

// ValidateSSN checks a social security number: nine digits after removing
// dashes and spaces, no 000/666/9xx area, no 00 group, no 0000 serial and
// none of the well-known invalid numbers.
func ValidateSSN(raw string) error {
	ssn := NormalizeSSN(raw)
	if len(ssn) != 9 {
		return ErrSSNFormat
	}
	for _, r := range ssn {
		if r < '0' || r > '9' {
			return ErrSSNFormat
		}
	}
	area, group, serial := ssn[:3], ssn[3:5], ssn[5:]
	switch {
	case area == "000", area == "666", area[0] == '9':
		return ErrSSNDenied
	case group == "00", serial == "0000":
		return ErrSSNDenied
	case deniedSSNs[ssn]:
		return ErrSSNDenied
	}
	return nil
}

// validateAnswer returns a message for an invalid answer to q, or "".
// Blank answers are only a problem for required questions.
func validateAnswer(q upstream.Question, value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		if q.Required {
			return "this question is required"
		}
		return ""
	}
	switch q.Type {
	case upstream.QuestionSelect:
		for _, opt := range q.Options {
			if opt == v {
				return ""
			}
		}
		return "choose one of the offered options"
	case upstream.QuestionDate:
		if _, err := time.Parse(DateLayout, v); err != nil {
			return "use the format YYYY-MM-DD"
		}
	case upstream.QuestionSSN:
		if err := ValidateSSN(v); err != nil {
			return err.Error()
		}
	}
	return ""
}

// validateSubmission runs every client-side precondition of Submit. Nothing
// reaches the network while it reports a problem.
func validateSubmission(s *State) error {
	v := &faults.ValidationError{}
	if s.Step != StepReview {
		v.Add("step", "review your order before submitting")
	}
	if len(s.IncludedServices()) == 0 {
		v.Add("services", "choose at least one service")
	}
	for _, svc := range s.IncludedServices() {
		if s.SelectedPlans[svc] == "" {
			v.Add("plans."+string(svc), "choose a plan")
		}
	}
	if s.ProviderSteps == nil {
		v.Add("questions", "provider questions have not been loaded")
	}
	if !s.TermsAccepted {
		v.Add("terms", "accept the terms of service")
	}
	for _, st := range s.ProviderSteps {
		for _, q := range st.Questions {
			if msg := validateAnswer(q, s.Answers[q.ID]); msg != "" {
				v.Add("answers."+q.ID, msg)
			}
		}
		for _, d := range st.Documents {
			if !d.Required {
				continue
			}
			if doc, ok := s.Documents[d.ID]; !ok || doc.Status != DocumentUploaded {
				v.Add("documents."+d.ID, "upload this document")
			}
		}
	}
	return v.OrNil()
}

// sensitiveQuestions returns the ids of ssn-typed questions.
func sensitiveQuestions(s *State) map[string]bool {
	out := make(map[string]bool)
	for _, st := range s.ProviderSteps {
		for _, q := range st.Questions {
			if q.Type == upstream.QuestionSSN {
				out[q.ID] = true
			}
		}
	}
	return out
}
