package providers

import (
	"sort"
	"sync"
)

// Registry keeps vendor metadata learned from catalogs and checkout schemas.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	vendors map[string]Vendor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{vendors: make(map[string]Vendor)}
}

// Register inserts or merges a vendor. Services are unioned; non-empty fields
// of v replace stored ones.
func (r *Registry) Register(v Vendor) {
	if v.Key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.vendors[v.Key]
	if !ok {
		v.Services = append([]ServiceType(nil), v.Services...)
		r.vendors[v.Key] = v
		return
	}
	if v.Name != "" {
		cur.Name = v.Name
	}
	if v.LandingURL != "" {
		cur.LandingURL = v.LandingURL
	}
	if v.Phone != "" {
		cur.Phone = v.Phone
	}
	for _, s := range v.Services {
		if !containsService(cur.Services, s) {
			cur.Services = append(cur.Services, s)
		}
	}
	r.vendors[v.Key] = cur
}

// Get returns a vendor by key.
func (r *Registry) Get(key string) (Vendor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vendors[key]
	return v, ok
}

// List returns all vendors sorted by key.
func (r *Registry) List() []Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Vendor, 0, len(r.vendors))
	for _, v := range r.vendors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func containsService(list []ServiceType, s ServiceType) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
