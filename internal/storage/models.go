package storage

import "time"

// Provider holds metadata about a utility vendor.
type Provider struct {
	Key        string `json:"key" gorm:"primaryKey;column:key"`
	Name       string `json:"name" gorm:"column:name"`
	LandingURL string `json:"landingUrl" gorm:"column:landing_url"`
	Phone      string `json:"phone,omitempty" gorm:"column:phone"`
	// Services is a comma separated list of service types.
	Services  string    `json:"services" gorm:"column:services"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// PlanSnapshot stores the plan catalog fetched for one service and zip.
type PlanSnapshot struct {
	Key       string    `json:"key" gorm:"primaryKey;column:key"`
	Service   string    `json:"service" gorm:"column:service"`
	Zip       string    `json:"zip" gorm:"column:zip"`
	Payload   []byte    `json:"payload" gorm:"column:payload"`
	FetchedAt time.Time `json:"fetched_at" gorm:"column:fetched_at"`
}

// Fresh reports whether the snapshot is younger than ttl at now.
func (s PlanSnapshot) Fresh(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(s.FetchedAt) < ttl
}

// Order is a submitted move-in order. Payload holds the confirmation as
// JSON; sensitive answers are never persisted.
type Order struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	SessionToken string    `json:"session_token" gorm:"column:session_token"`
	Reference    string    `json:"reference" gorm:"column:reference"`
	Address      string    `json:"address" gorm:"column:address"`
	Payload      []byte    `json:"payload" gorm:"column:payload"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
}

// ScheduledJob records the last run of a background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}
