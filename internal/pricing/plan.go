package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/bher20/movein/pkg/providers"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Rate is the price schedule of a plan as published by the catalog.
type Rate struct {
	// PerKwhCents is the energy charge in hundredths of a dollar per kWh.
	PerKwhCents decimal.Decimal `json:"per_kwh_cents"`
	// MonthlyFee is the flat monthly charge in dollars.
	MonthlyFee       decimal.Decimal `json:"monthly_fee"`
	ContractMonths   int             `json:"contract_months"`
	CancellationFee  decimal.Decimal `json:"cancellation_fee"`
	RenewablePercent float64         `json:"renewable_percent"`
}

// Plan is a catalog entry for one service.
type Plan struct {
	ID       string                `json:"id"`
	Provider string                `json:"provider"`
	Name     string                `json:"name"`
	Service  providers.ServiceType `json:"service"`
	Rate     Rate                  `json:"rate"`
}

// Green reports whether the plan is fully renewable.
func (p Plan) Green() bool {
	return p.Rate.RenewablePercent >= 100
}

// AnnualCost is the yearly cost of rate under usage:
// sum(usage_i * cents/100) + 12 * monthly fee.
func AnnualCost(u Usage, r Rate) decimal.Decimal {
	perKwh := r.PerKwhCents.Div(hundred)
	total := decimal.Zero
	for _, kwh := range u {
		total = total.Add(decimal.NewFromFloat(kwh).Mul(perKwh))
	}
	return total.Add(r.MonthlyFee.Mul(twelve))
}

// MonthlyEstimate is AnnualCost spread evenly over twelve months.
func MonthlyEstimate(u Usage, r Rate) decimal.Decimal {
	return AnnualCost(u, r).Div(twelve)
}
