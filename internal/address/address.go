package address

import (
	"strings"

	"github.com/bher20/movein/internal/upstream"
)

// Search limits.
const (
	MinQueryLen    = 3
	MaxSuggestions = 10
)

// Address is the service address of the order.
type Address struct {
	Street    string `json:"street"`
	Unit      string `json:"unit,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Formatted string `json:"formatted"`
	ESIID     string `json:"esiid,omitempty"`
}

// IsZero reports whether no address was set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// FromResult converts a search suggestion into an Address.
func FromResult(r upstream.AddressResult) Address {
	a := Address{
		Street:    strings.TrimSpace(r.Address),
		Unit:      strings.TrimSpace(r.Unit),
		City:      strings.TrimSpace(r.City),
		State:     strings.TrimSpace(r.State),
		Zip:       strings.TrimSpace(r.ZipCode),
		Formatted: strings.TrimSpace(r.Formatted),
		ESIID:     strings.TrimSpace(r.ESIID),
	}
	if a.Formatted == "" {
		a.Formatted = a.Format()
	}
	return a
}

// Format renders a one-line address.
func (a Address) Format() string {
	street := a.Street
	if a.Unit != "" {
		street += " " + a.Unit
	}
	parts := []string{street, a.City}
	tail := strings.TrimSpace(a.State + " " + a.Zip)
	if tail != "" {
		parts = append(parts, tail)
	}
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// Normalize filters search results to active residential premises, drops
// duplicates by street+city+zip (first occurrence wins) and caps the list.
func Normalize(results []upstream.AddressResult) []upstream.AddressResult {
	seen := make(map[string]bool, len(results))
	out := make([]upstream.AddressResult, 0, MaxSuggestions)
	for _, r := range results {
		if !strings.EqualFold(r.Status, upstream.StatusActive) {
			continue
		}
		if !strings.EqualFold(r.PremiseType, upstream.PremiseResidential) {
			continue
		}
		key := dedupeKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

func dedupeKey(r upstream.AddressResult) string {
	norm := func(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), " ")) }
	return norm(r.Address) + "|" + norm(r.City) + "|" + norm(r.ZipCode)
}
