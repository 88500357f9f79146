package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for vendors, plan catalog snapshots, placed
// orders and scheduled job bookkeeping. Getters return (nil, nil) when the
// record does not exist.
type Storage interface {
	// Vendors
	ListProviders(ctx context.Context) ([]Provider, error)
	GetProvider(ctx context.Context, key string) (*Provider, error)
	UpsertProvider(ctx context.Context, p Provider) error

	// Plan catalog snapshots
	GetPlanSnapshot(ctx context.Context, key string) (*PlanSnapshot, error)
	SavePlanSnapshot(ctx context.Context, snap PlanSnapshot) error

	// Orders
	SaveOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)

	// Jobs
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}

// Locker is implemented by backends that can coordinate jobs across
// replicas.
type Locker interface {
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
}

// SnapshotKey is the cache key of a plan catalog for one service and zip.
func SnapshotKey(service, zip string) string {
	return service + ":" + zip
}
