package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStorage backs Storage with sqlite or postgres through gorm.
type GormStorage struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[int64]*sql.Conn // session locks pin their connection
}

// NewGormStorage opens driver ("sqlite", "postgres") at dsn.
func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres", "postgrespool":
		dialector = postgres.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = "movein.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return &GormStorage{db: db, locks: make(map[int64]*sql.Conn)}, nil
}

// Migrate creates or updates the tables. Deployments that manage the schema
// with the migrate command can skip it.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&Provider{},
		&PlanSnapshot{},
		&Order{},
		&ScheduledJob{},
	)
}

func (s *GormStorage) ListProviders(ctx context.Context) ([]Provider, error) {
	var providers []Provider
	result := s.db.WithContext(ctx).Order("key").Find(&providers)
	return providers, result.Error
}

func (s *GormStorage) GetProvider(ctx context.Context, key string) (*Provider, error) {
	var p Provider
	if err := first(s.db.WithContext(ctx), &p, "key = ?", key); err != nil || p.Key == "" {
		return nil, err
	}
	return &p, nil
}

func (s *GormStorage) UpsertProvider(ctx context.Context, p Provider) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&p).Error
}

func (s *GormStorage) GetPlanSnapshot(ctx context.Context, key string) (*PlanSnapshot, error) {
	var snap PlanSnapshot
	if err := first(s.db.WithContext(ctx), &snap, "key = ?", key); err != nil || snap.Key == "" {
		return nil, err
	}
	return &snap, nil
}

func (s *GormStorage) SavePlanSnapshot(ctx context.Context, snap PlanSnapshot) error {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&snap).Error
}

func (s *GormStorage) SaveOrder(ctx context.Context, o Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&o).Error
}

func (s *GormStorage) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	if err := first(s.db.WithContext(ctx), &o, "id = ?", id); err != nil || o.ID == "" {
		return nil, err
	}
	return &o, nil
}

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	job := ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AcquireAdvisoryLock takes a postgres session lock on a dedicated
// connection, released by ReleaseAdvisoryLock. SQLite is single instance and
// always succeeds.
func (s *GormStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() != "postgres" {
		return true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[key]; held {
		return false, nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return false, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil || !ok {
		conn.Close()
		return false, err
	}
	s.locks[key] = conn
	return true, nil
}

func (s *GormStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() != "postgres" {
		return true, nil
	}
	s.mu.Lock()
	conn, held := s.locks[key]
	delete(s.locks, key)
	s.mu.Unlock()
	if !held {
		return false, nil
	}
	defer conn.Close()
	var ok bool
	err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	return ok, err
}

// first loads one row into dst; a missing row is not an error.
func first(db *gorm.DB, dst any, query string, args ...any) error {
	err := db.Where(query, args...).First(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
