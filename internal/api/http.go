package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bher20/movein/internal/api/swagger"
	"github.com/bher20/movein/internal/catalog"
	"github.com/bher20/movein/internal/logging"
	"github.com/bher20/movein/internal/metrics"
	"github.com/bher20/movein/internal/storage"
)

// Options are the collaborators of the HTTP API. Storage and Catalog may be
// nil; their endpoints then answer 404 or report an empty list.
type Options struct {
	Sessions *Sessions
	Storage  storage.Storage
	Catalog  *catalog.Service
	Log      *zap.Logger
}

// NewMux constructs the HTTP mux, wiring in the checkout sessions, catalog
// lookups, metrics, and health endpoints.
func NewMux(opts Options) *http.ServeMux {
	log := logging.OrNop(opts.Log)
	mux := http.NewServeMux()

	// Metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Storage != nil {
			if err := opts.Storage.Ping(r.Context()); err != nil {
				log.Warn("readyz: storage ping failed", zap.Error(err))
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	// API docs.
	mux.Handle("/swagger/", http.StripPrefix("/swagger", swagger.Handler("/swagger")))

	plain := func(pattern string, h http.Handler) {
		mux.Handle(pattern, instrument(pattern, h))
	}
	registerCatalogRoutes(plain, opts)

	if opts.Sessions != nil {
		registerCheckoutRoutes(func(pattern string, h http.Handler) {
			mux.Handle(pattern, instrument(pattern, opts.Sessions.Middleware(h)))
		})
	}
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request count, duration and error status per route.
func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		next.ServeHTTP(rec, r)
		metrics.RequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if rec.status >= 400 {
			metrics.RequestErrorsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
	})
}
