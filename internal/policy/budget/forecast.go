package budget

import (
	"fmt"
	"time"
)

// ForecastReport projects end-of-period spend from the observed burn rate.
type ForecastReport struct {
	DaysElapsed         int     `json:"days_elapsed"`
	DaysRemaining       int     `json:"days_remaining"`
	CurrentSpend        float64 `json:"current_spend"`
	DailyBurnRate       float64 `json:"daily_burn_rate"`
	ProjectedSpend      float64 `json:"projected_spend"`
	BudgetLimit         float64 `json:"budget_limit"`
	ProjectedOverage    float64 `json:"projected_overage"`
	DaysUntilExhaustion float64 `json:"days_until_exhaustion"`
	WillExceedBudget    bool    `json:"will_exceed_budget"`
}

// Forecast computes the burn-rate projection for the facts. Callers must run
// ValidateFacts first; DaysElapsed is assumed positive.
func Forecast(f Facts, params Params) ForecastReport {
	days := params.projectionDays()
	burn := f.dailyBurn()
	projected := burn * float64(days)
	remaining := days - f.DaysElapsed
	if remaining < 0 {
		remaining = 0
	}

	exhaustion := float64(remaining)
	if burn > 0 {
		if left := f.Budget.Limit - f.CurrentSpend; left > 0 {
			if d := left / burn; d < exhaustion {
				exhaustion = d
			}
		} else {
			exhaustion = 0
		}
	}

	overage := projected - f.Budget.Limit
	if overage < 0 {
		overage = 0
	}

	return ForecastReport{
		DaysElapsed:         f.DaysElapsed,
		DaysRemaining:       remaining,
		CurrentSpend:        f.CurrentSpend,
		DailyBurnRate:       burn,
		ProjectedSpend:      projected,
		BudgetLimit:         f.Budget.Limit,
		ProjectedOverage:    overage,
		DaysUntilExhaustion: exhaustion,
		WillExceedBudget:    projected > f.Budget.Limit,
	}
}

// alertThresholds are the utilization levels that raise alerts, ascending.
var alertThresholds = []float64{0.5, 0.75, 1.0}

// AlertLevel returns the highest crossed utilization threshold rendered as a
// whole percentage ("75%"), or "" when spend is below every threshold. The
// configured budget threshold participates alongside the fixed levels.
func AlertLevel(f Facts) string {
	if f.Budget.Limit <= 0 {
		return ""
	}
	utilization := f.CurrentSpend / f.Budget.Limit

	levels := append([]float64{f.threshold()}, alertThresholds...)
	crossed := 0.0
	for _, lvl := range levels {
		if utilization >= lvl && lvl > crossed {
			crossed = lvl
		}
	}
	if crossed == 0 {
		return ""
	}
	return fmt.Sprintf("%.0f%%", crossed*100)
}

// Alert is a threshold-crossing notification for downstream delivery.
type Alert struct {
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Threshold      string    `json:"threshold"`
	Utilization    float64   `json:"utilization_percent"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	ActionRequired bool      `json:"action_required"`
}

// NewAlert builds an alert for the facts, or nil when no threshold is crossed.
func NewAlert(f Facts) *Alert {
	level := AlertLevel(f)
	if level == "" {
		return nil
	}

	utilization := f.CurrentSpend / f.Budget.Limit * 100

	severity := "medium"
	switch level {
	case "50%":
		severity = "low"
	case "100%":
		severity = "critical"
	default:
		if utilization >= 90 {
			severity = "high"
		}
	}

	return &Alert{
		Type:        "budget_threshold",
		Severity:    severity,
		Threshold:   level,
		Utilization: utilization,
		Message: fmt.Sprintf("Spend $%.2f is at %.0f%% of the $%.2f budget",
			f.CurrentSpend, utilization, f.Budget.Limit),
		Timestamp:      time.Now().UTC(),
		ActionRequired: utilization >= 90,
	}
}
