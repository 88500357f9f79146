package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	UpstreamURL     string
	UpstreamTimeout time.Duration
	SkipTLSVerify   bool

	DBDriver    string
	DBDSN       string
	AutoMigrate bool

	CatalogTTL      time.Duration
	PrewarmSchedule string
	PrewarmZips     []string

	Debounce        time.Duration
	MinLoading      time.Duration
	EligibilityMode string

	LogFormat string
	LogLevel  string

	SendgridAPIKey string
	MailFrom       string
	MailFromName   string

	AlertWebhookURL  string
	AlertWebhookType string
}

// FromEnv builds a Config from environment variables, with sane defaults.
// Malformed durations and booleans fall back to their defaults.
func FromEnv() Config {
	return Config{
		Port:             env("PORT", "8080"),
		UpstreamURL:      env("MOVEIN_UPSTREAM_URL", "http://localhost:9090"),
		UpstreamTimeout:  envDuration("MOVEIN_UPSTREAM_TIMEOUT", 15*time.Second),
		SkipTLSVerify:    envBool("MOVEIN_UPSTREAM_SKIP_TLS_VERIFY", false),
		DBDriver:         env("MOVEIN_DB_DRIVER", "memory"),
		DBDSN:            os.Getenv("MOVEIN_DB_DSN"),
		AutoMigrate:      envBool("MOVEIN_AUTO_MIGRATE", true),
		CatalogTTL:       envDuration("MOVEIN_CATALOG_TTL", 15*time.Minute),
		PrewarmSchedule:  env("MOVEIN_PREWARM_SCHEDULE", "600"),
		PrewarmZips:      envList("MOVEIN_PREWARM_ZIPS"),
		Debounce:         envDuration("MOVEIN_DEBOUNCE", 300*time.Millisecond),
		MinLoading:       envDuration("MOVEIN_MIN_LOADING", 800*time.Millisecond),
		EligibilityMode:  env("MOVEIN_ELIGIBILITY_MODE", "dwelling"),
		LogFormat:        env("MOVEIN_LOG_FORMAT", "json"),
		LogLevel:         env("MOVEIN_LOG_LEVEL", "info"),
		SendgridAPIKey:   os.Getenv("SENDGRID_API_KEY"),
		MailFrom:         os.Getenv("MOVEIN_MAIL_FROM"),
		MailFromName:     env("MOVEIN_MAIL_FROM_NAME", "Move-in"),
		AlertWebhookURL:  os.Getenv("MOVEIN_ALERT_WEBHOOK_URL"),
		AlertWebhookType: os.Getenv("MOVEIN_ALERT_WEBHOOK_TYPE"),
	}
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "memory", "sqlite", "postgres", "postgrespool":
	default:
		return fmt.Errorf("MOVEIN_DB_DRIVER: unsupported driver %q", c.DBDriver)
	}
	if (c.DBDriver == "postgres" || c.DBDriver == "postgrespool") && c.DBDSN == "" {
		return fmt.Errorf("MOVEIN_DB_DSN is required for driver %q", c.DBDriver)
	}
	if c.UpstreamURL == "" {
		return fmt.Errorf("MOVEIN_UPSTREAM_URL is required")
	}
	if c.SendgridAPIKey != "" && c.MailFrom == "" {
		return fmt.Errorf("MOVEIN_MAIL_FROM is required when SENDGRID_API_KEY is set")
	}
	return nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// Bare numbers are milliseconds.
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
