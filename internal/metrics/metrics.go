package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movein_requests_total",
			Help: "Total number of API requests per route",
		},
		[]string{"route"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movein_request_duration_seconds",
			Help:    "API request duration in seconds per route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movein_request_errors_total",
			Help: "Total number of error responses per route and status code",
		},
		[]string{"route", "code"},
	)
)

var (
	CatalogFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movein_catalog_fetches_total",
			Help: "Plan catalog fetch attempts per service and outcome",
		},
		[]string{"service", "outcome"},
	)

	CatalogRateLimitRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movein_catalog_rate_limit_retries_total",
			Help: "Backoff retries issued after a rate-limited catalog response",
		},
		[]string{"service"},
	)

	CatalogCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movein_catalog_cache_total",
			Help: "Catalog snapshot cache lookups by result (hit, miss, stale)",
		},
		[]string{"result"},
	)

	ResolutionOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movein_meter_resolution_total",
			Help: "Meter resolution outcomes (confirmed, single, multiple, none, error)",
		},
		[]string{"outcome"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movein_submissions_total",
			Help: "Checkout submissions by result (ok, error, partial_failure, invalid)",
		},
		[]string{"result"},
	)
)

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "movein_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "movein_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movein_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
