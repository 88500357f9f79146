package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/storage"
	"github.com/bher20/movein/internal/upstream"
	"github.com/bher20/movein/pkg/providers"
)

// QuoteResponse is a ranked catalog for one service and zip.
type QuoteResponse struct {
	Service providers.ServiceType `json:"service"`
	Zip     string                `json:"zip"`
	Usage   pricing.Usage         `json:"usage"`
	Plans   []pricing.RankedPlan  `json:"plans"`
}

func registerCatalogRoutes(route func(pattern string, h http.Handler), opts Options) {
	route("GET /api/providers", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var list []storage.Provider
		if opts.Storage != nil {
			var err error
			if list, err = opts.Storage.ListProviders(r.Context()); err != nil {
				writeError(w, err)
				return
			}
		} else if opts.Catalog != nil {
			for _, v := range opts.Catalog.Vendors().List() {
				list = append(list, storage.Provider{Key: v.Key, Name: v.Name, LandingURL: v.LandingURL, Phone: v.Phone})
			}
		}
		if list == nil {
			list = []storage.Provider{}
		}
		writeJSON(w, http.StatusOK, struct {
			Providers []storage.Provider `json:"providers"`
		}{list})
	}))

	// GET /api/plans?service=electricity&zip=78701&average=1200 ranks a
	// catalog without a wizard session.
	route("GET /api/plans", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if opts.Catalog == nil {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		svc, err := providers.ParseServiceType(q.Get("service"))
		if err != nil {
			writeError(w, faults.NewValidation("service", err.Error()))
			return
		}
		usage := pricing.DefaultUsage
		if raw := strings.TrimSpace(q.Get("average")); raw != "" {
			avg, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				writeError(w, faults.NewValidation("average", "must be a number"))
				return
			}
			if usage, err = pricing.ScaleTo(pricing.DefaultUsage, avg); err != nil {
				writeError(w, faults.NewValidation("average", err.Error()))
				return
			}
		}
		zip := strings.TrimSpace(q.Get("zip"))
		cq := upstream.CatalogQuery{Service: svc, Zip: zip}
		if svc.UsageBased() {
			cq.Usage = usage[:]
		}
		plans, err := opts.Catalog.GetPlans(r.Context(), cq)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, QuoteResponse{Service: svc, Zip: zip, Usage: usage, Plans: pricing.Rank(plans, usage)})
	}))

	route("GET /api/orders/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if opts.Storage == nil {
			http.NotFound(w, r)
			return
		}
		o, err := opts.Storage.GetOrder(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if o == nil {
			writeError(w, &faults.NotFoundError{What: "order", Query: r.PathValue("id")})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(o.Payload)
	}))
}
