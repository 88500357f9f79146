package providers

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceType is a utility service that can be provisioned for an address.
type ServiceType string

const (
	ServiceElectricity ServiceType = "electricity"
	ServiceWater       ServiceType = "water"
	ServiceInternet    ServiceType = "internet"
)

// Services lists every service type in display order.
var Services = []ServiceType{ServiceWater, ServiceElectricity, ServiceInternet}

// Valid reports whether s is a known service type.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceElectricity, ServiceWater, ServiceInternet:
		return true
	}
	return false
}

// UsageBased reports whether plan prices for s depend on the usage profile.
func (s ServiceType) UsageBased() bool {
	return s == ServiceElectricity
}

// ParseServiceType normalizes a user or wire supplied service name.
func ParseServiceType(raw string) (ServiceType, error) {
	s := ServiceType(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, raw)
	}
	return s, nil
}

// Vendor is a third-party provider that sells plans for one or more services.
type Vendor struct {
	// Key is the unique identifier of the vendor (e.g., "reliant", "cityofaustin").
	Key string `json:"key"`
	// Name is the human-readable name.
	Name string `json:"name"`
	// LandingURL points at the vendor's plan or sign-up page.
	LandingURL string `json:"landing_url,omitempty"`
	// Phone is the customer service number shown on the confirmation.
	Phone string `json:"phone,omitempty"`
	// Services the vendor was seen offering.
	Services []ServiceType `json:"services,omitempty"`
}

// Common errors shared across providers.
var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrUnknownService   = errors.New("unknown service type")
)
