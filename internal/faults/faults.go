package faults

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common sentinel errors shared across packages.
var (
	ErrStale         = errors.New("result superseded by a newer request")
	ErrNoAddress     = errors.New("no address selected")
	ErrNotSelectable = errors.New("candidate is not selectable")
)

// ValidationError carries field-level problems found before any network call.
// It never reaches an upstream service.
type ValidationError struct {
	Fields map[string]string
}

// NewValidation builds a ValidationError for a single field.
func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Add records a problem for field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Empty reports whether no field problems were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns e as an error, or nil when it holds no field problems.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError means a lookup produced zero matches. Correcting the input is
// the only way forward; there is no retry loop.
type NotFoundError struct {
	What  string
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found for %q", e.What, e.Query)
}

// RateLimitError is returned when an upstream answered with a rate-limit
// status. Exhausted is set once the retry budget was spent.
type RateLimitError struct {
	Op        string
	Attempts  int
	Exhausted bool
}

func (e *RateLimitError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("%s: rate limited, gave up after %d attempts", e.Op, e.Attempts)
	}
	return fmt.Sprintf("%s: rate limited", e.Op)
}

// UpstreamError wraps a failed call to a remote collaborator.
type UpstreamError struct {
	Op     string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: upstream status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PartialFailure is a submission failure after documents were uploaded. The
// refs stay valid so the user does not need to upload again.
type PartialFailure struct {
	Err          error
	DocumentRefs []string
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("submission failed with %d uploaded documents retained: %v", len(e.DocumentRefs), e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

// Retryable reports whether the user should be offered a retry for err.
func Retryable(err error) bool {
	var rl *RateLimitError
	var up *UpstreamError
	var pf *PartialFailure
	return errors.As(err, &rl) || errors.As(err, &up) || errors.As(err, &pf)
}

// UserMessage renders err in plain language for display.
func UserMessage(err error) string {
	var (
		v  *ValidationError
		nf *NotFoundError
		rl *RateLimitError
		pf *PartialFailure
		up *UpstreamError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &v):
		return "Please fix the highlighted fields and try again."
	case errors.As(err, &nf):
		return "We couldn't find a match for that address. Please check it and try a different one."
	case errors.As(err, &rl):
		return "Our providers are busy right now. Please wait a moment and retry."
	case errors.As(err, &pf):
		return "We couldn't place your order. Your answers and uploaded documents were saved, so you can retry."
	case errors.As(err, &up):
		return "Something went wrong talking to a provider. Please retry."
	case errors.Is(err, ErrStale):
		return ""
	default:
		return "Something went wrong. Please retry."
	}
}
