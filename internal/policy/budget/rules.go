// Package budget implements budget enforcement rules: threshold compliance,
// forecast acceptance, and burn-rate projection over a 30-day period.
package budget

import (
	"fmt"

	"github.com/cloudgov/costguard/internal/policy"
)

const (
	// projectionDays projects the daily burn over a full monthly period.
	projectionDays = 30

	// burnRateMargin tolerates projections up to 110% of the limit before
	// the burn-rate rule fires.
	burnRateMargin = 1.1
)

// Params tunes the budget rule set. The zero value means package defaults.
type Params struct {
	ProjectionDays int     `yaml:"projection_days"`
	BurnRateMargin float64 `yaml:"burn_rate_margin"`
}

func (p Params) projectionDays() int {
	if p.ProjectionDays <= 0 {
		return projectionDays
	}
	return p.ProjectionDays
}

func (p Params) burnRateMargin() float64 {
	if p.BurnRateMargin <= 0 {
		return burnRateMargin
	}
	return p.BurnRateMargin
}

// NewPolicy builds the budget policy. Currency amounts render with two
// decimals and percentages with none, matching the existing report format.
func NewPolicy(params Params, strictness policy.Strictness) policy.Policy[Facts] {
	return policy.Policy[Facts]{
		Name:       PolicyName,
		Strictness: strictness,
		Rules: []policy.Rule[Facts]{
			{Name: "within_budget", Check: checkWithinBudget},
			{Name: "forecast_within_limit", Check: checkForecast},
			{Name: "burn_rate", Check: checkBurnRate(params)},
		},
	}
}

// checkWithinBudget fires when current spend exceeds the alert threshold.
// The boundary is inclusive: spend exactly at limit*threshold passes.
func checkWithinBudget(f Facts) *policy.Violation {
	cap := f.Budget.Limit * f.threshold()
	if f.CurrentSpend <= cap {
		return nil
	}
	return &policy.Violation{
		Message: fmt.Sprintf("Budget threshold exceeded: $%.2f > $%.2f (%.0f%% of $%.2f)",
			f.CurrentSpend, cap, f.threshold()*100, f.Budget.Limit),
	}
}

func checkForecast(f Facts) *policy.Violation {
	if f.ForecastSpend <= f.Budget.Limit {
		return nil
	}
	return &policy.Violation{
		Message: fmt.Sprintf("Forecast spend $%.2f exceeds budget limit $%.2f by $%.2f",
			f.ForecastSpend, f.Budget.Limit, f.ForecastSpend-f.Budget.Limit),
	}
}

func checkBurnRate(params Params) func(Facts) *policy.Violation {
	days := params.projectionDays()
	margin := params.burnRateMargin()

	return func(f Facts) *policy.Violation {
		projected := f.dailyBurn() * float64(days)
		ceiling := f.Budget.Limit * margin
		if projected <= ceiling {
			return nil
		}
		return &policy.Violation{
			Message: fmt.Sprintf("Burn rate too high: $%.2f/day projects to $%.2f over %d days, above %.0f%% of the $%.2f limit",
				f.dailyBurn(), projected, days, margin*100, f.Budget.Limit),
		}
	}
}
