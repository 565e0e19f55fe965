package usage

import (
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/shopspring/decimal"
)

// Limit is a per-day ceiling for a metric; Unlimited means no ceiling
type Limit struct {
	Metric    Metric
	PerDay    decimal.Decimal
	Unlimited bool
}

var dailyAPICallLimits = map[licensing.Plan]int64{
	licensing.PlanFree:    1_000,
	licensing.PlanStarter: 10_000,
	licensing.PlanPro:     100_000,
}

// LimitFor returns the daily limit of metric under plan. Only api_call is
// limited; enterprise and unknown metrics are unlimited.
func LimitFor(plan licensing.Plan, metric Metric) Limit {
	if metric != MetricAPICall {
		return Limit{Metric: metric, Unlimited: true}
	}
	n, ok := dailyAPICallLimits[plan]
	if !ok {
		return Limit{Metric: metric, Unlimited: true}
	}
	return Limit{Metric: metric, PerDay: decimal.NewFromInt(n)}
}

// Exceeded reports whether used has reached the limit
func (l Limit) Exceeded(used decimal.Decimal) bool {
	if l.Unlimited {
		return false
	}
	return used.GreaterThanOrEqual(l.PerDay)
}

// Remaining returns how much of the limit is left, floored at zero
func (l Limit) Remaining(used decimal.Decimal) decimal.Decimal {
	if l.Unlimited {
		return decimal.NewFromInt(-1)
	}
	r := l.PerDay.Sub(used)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
