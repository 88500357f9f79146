package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Badge is a display label derived from the ranked set.
type Badge string

const (
	BadgeNone      Badge = ""
	BadgeBestValue Badge = "best_value"
	BadgeGreen     Badge = "green"
)

// DefaultVisible is how many ranked plans are shown before "view all".
const DefaultVisible = 3

// RankedPlan is a plan priced against a usage profile.
type RankedPlan struct {
	Plan
	Rank            int             `json:"rank"`
	CatalogIndex    int             `json:"catalog_index"`
	AnnualCost      decimal.Decimal `json:"annual_cost"`
	MonthlyEstimate decimal.Decimal `json:"monthly_estimate"`
	Badge           Badge           `json:"badge,omitempty"`
}

// Rank prices every plan against u and orders them by ascending annual cost.
// Ties keep catalog order. Badges are assigned after ordering: the cheapest
// plan that is not fully renewable gets best value, every fully renewable
// plan gets green.
func Rank(plans []Plan, u Usage) []RankedPlan {
	out := make([]RankedPlan, len(plans))
	for i, p := range plans {
		annual := AnnualCost(u, p.Rate)
		out[i] = RankedPlan{
			Plan:            p,
			CatalogIndex:    i,
			AnnualCost:      annual,
			MonthlyEstimate: annual.Div(twelve),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AnnualCost.LessThan(out[j].AnnualCost)
	})

	bestValueTaken := false
	for i := range out {
		out[i].Rank = i + 1
		switch {
		case !bestValueTaken && !out[i].Green():
			out[i].Badge = BadgeBestValue
			bestValueTaken = true
		case out[i].Green():
			out[i].Badge = BadgeGreen
		}
	}
	return out
}

// Visible returns the plans to display: the top DefaultVisible unless showAll.
func Visible(ranked []RankedPlan, showAll bool) []RankedPlan {
	n := len(ranked)
	if !showAll && n > DefaultVisible {
		n = DefaultVisible
	}
	out := make([]RankedPlan, n)
	copy(out, ranked[:n])
	return out
}

// Find looks up a plan by id.
func Find(ranked []RankedPlan, id string) (RankedPlan, bool) {
	for _, p := range ranked {
		if p.ID == id {
			return p, true
		}
	}
	return RankedPlan{}, false
}

// Reconcile keeps a selection that survives a re-rank and clears it otherwise.
// There is no substitution of another plan.
func Reconcile(ranked []RankedPlan, selectedID string) string {
	if selectedID == "" {
		return ""
	}
	if _, ok := Find(ranked, selectedID); ok {
		return selectedID
	}
	return ""
}

// Rerank reprices an already ranked set against a new usage profile. Plans
// are put back in catalog order first so ties resolve the same way as the
// initial ranking.
func Rerank(ranked []RankedPlan, u Usage) []RankedPlan {
	byCatalog := make([]RankedPlan, len(ranked))
	copy(byCatalog, ranked)
	sort.SliceStable(byCatalog, func(i, j int) bool {
		return byCatalog[i].CatalogIndex < byCatalog[j].CatalogIndex
	})
	plans := make([]Plan, len(byCatalog))
	for i, p := range byCatalog {
		plans[i] = p.Plan
	}
	return Rank(plans, u)
}
