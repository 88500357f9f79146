package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu        sync.RWMutex
	providers map[string]Provider
	snaps     map[string]PlanSnapshot
	orders    map[string]Order
	jobs      map[string]ScheduledJob
}

// NewMemory returns an empty MemoryStorage.
func NewMemory() *MemoryStorage {
	return NewMemoryWithProviders(nil)
}

// NewMemoryWithProviders returns a MemoryStorage preloaded with list.
func NewMemoryWithProviders(list []Provider) *MemoryStorage {
	m := &MemoryStorage{
		providers: make(map[string]Provider),
		snaps:     make(map[string]PlanSnapshot),
		orders:    make(map[string]Order),
		jobs:      make(map[string]ScheduledJob),
	}
	for _, p := range list {
		m.providers[p.Key] = p
	}
	return m
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

func (m *MemoryStorage) ListProviders(ctx context.Context) ([]Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStorage) GetProvider(ctx context.Context, key string) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[key]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStorage) UpsertProvider(ctx context.Context, p Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	m.providers[p.Key] = p
	return nil
}

func (m *MemoryStorage) GetPlanSnapshot(ctx context.Context, key string) (*PlanSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[key]
	if !ok {
		return nil, nil
	}
	s.Payload = append([]byte(nil), s.Payload...)
	return &s, nil
}

func (m *MemoryStorage) SavePlanSnapshot(ctx context.Context, snap PlanSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	snap.Payload = append([]byte(nil), snap.Payload...)
	m.snaps[snap.Key] = snap
	return nil
}

func (m *MemoryStorage) SaveOrder(ctx context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MemoryStorage) GetOrder(ctx context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := 0
	if success {
		status = 1
	}
	m.jobs[name] = ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return nil
}

// Job returns the last recorded run of a job.
func (m *MemoryStorage) Job(name string) (ScheduledJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[name]
	return j, ok
}
