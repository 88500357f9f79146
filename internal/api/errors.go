package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bher20/movein/internal/catalog"
	"github.com/bher20/movein/internal/checkout"
	"github.com/bher20/movein/internal/faults"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error        string            `json:"error"`
	Message      string            `json:"message,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	Retryable    bool              `json:"retryable,omitempty"`
	DocumentRefs []string          `json:"documentRefs,omitempty"`
}

// statusOf maps an error to its HTTP status.
func statusOf(err error) int {
	var (
		v  *faults.ValidationError
		nf *faults.NotFoundError
		rl *faults.RateLimitError
		pf *faults.PartialFailure
		up *faults.UpstreamError
	)
	switch {
	case errors.As(err, &v), errors.Is(err, faults.ErrNoAddress), errors.Is(err, faults.ErrNotSelectable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &rl):
		return http.StatusServiceUnavailable
	case errors.As(err, &pf), errors.As(err, &up):
		return http.StatusBadGateway
	case errors.Is(err, checkout.ErrBusy), errors.Is(err, faults.ErrStale):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	body := ErrorResponse{
		Error:     err.Error(),
		Message:   faults.UserMessage(err),
		Retryable: faults.Retryable(err),
	}
	var v *faults.ValidationError
	if errors.As(err, &v) {
		body.Fields = v.Fields
	}
	var pf *faults.PartialFailure
	if errors.As(err, &pf) {
		body.DocumentRefs = pf.DocumentRefs
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(catalog.DefaultBaseBackoff.Seconds())))
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst. Bad JSON is a validation error.
func decode(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return faults.NewValidation("body", "invalid JSON: "+err.Error())
	}
	return nil
}
