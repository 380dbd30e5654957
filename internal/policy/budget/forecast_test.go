package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForecast(t *testing.T) {
	facts := Facts{
		CurrentSpend: 10000,
		Budget:       Limits{Limit: 50000},
		DaysElapsed:  10,
	}

	report := Forecast(facts, Params{})
	assert.Equal(t, 10, report.DaysElapsed)
	assert.Equal(t, 20, report.DaysRemaining)
	assert.InDelta(t, 1000.0, report.DailyBurnRate, 0.001)
	assert.InDelta(t, 30000.0, report.ProjectedSpend, 0.001)
	assert.Equal(t, 0.0, report.ProjectedOverage)
	assert.False(t, report.WillExceedBudget)
}

func TestForecastOverBudget(t *testing.T) {
	facts := Facts{
		CurrentSpend: 30000,
		Budget:       Limits{Limit: 50000},
		DaysElapsed:  10,
	}

	report := Forecast(facts, Params{})
	assert.InDelta(t, 90000.0, report.ProjectedSpend, 0.001)
	assert.InDelta(t, 40000.0, report.ProjectedOverage, 0.001)
	assert.True(t, report.WillExceedBudget)
	// 20000 left at 3000/day exhausts in under 7 days
	assert.InDelta(t, 20000.0/3000.0, report.DaysUntilExhaustion, 0.001)
}

func TestForecastExhaustedBudget(t *testing.T) {
	facts := Facts{
		CurrentSpend: 60000,
		Budget:       Limits{Limit: 50000},
		DaysElapsed:  20,
	}

	report := Forecast(facts, Params{})
	assert.Equal(t, 0.0, report.DaysUntilExhaustion)
	assert.True(t, report.WillExceedBudget)
}

func TestAlertLevel(t *testing.T) {
	tests := []struct {
		name  string
		spend float64
		want  string
	}{
		{"below all thresholds", 10000, ""},
		{"at 50 percent", 25000, "50%"},
		{"at 75 percent", 37500, "75%"},
		{"at configured 90 percent", 45000, "90%"},
		{"at limit", 50000, "100%"},
		{"over limit", 60000, "100%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := Facts{
				CurrentSpend: tt.spend,
				Budget:       Limits{Limit: 50000},
				DaysElapsed:  10,
			}
			assert.Equal(t, tt.want, AlertLevel(facts))
		})
	}
}

func TestNewAlert(t *testing.T) {
	// No threshold crossed: no alert
	assert.Nil(t, NewAlert(Facts{
		CurrentSpend: 100,
		Budget:       Limits{Limit: 50000},
		DaysElapsed:  1,
	}))

	alert := NewAlert(Facts{
		CurrentSpend: 47500,
		Budget:       Limits{Limit: 50000},
		DaysElapsed:  10,
	})
	require.NotNil(t, alert)
	assert.Equal(t, "budget_threshold", alert.Type)
	assert.Equal(t, "high", alert.Severity)
	assert.Equal(t, "90%", alert.Threshold)
	assert.True(t, alert.ActionRequired)

	critical := NewAlert(Facts{
		CurrentSpend: 50000,
		Budget:       Limits{Limit: 50000},
		DaysElapsed:  10,
	})
	require.NotNil(t, critical)
	assert.Equal(t, "critical", critical.Severity)

	low := NewAlert(Facts{
		CurrentSpend: 26000,
		Budget:       Limits{Limit: 50000},
		DaysElapsed:  10,
	})
	require.NotNil(t, low)
	assert.Equal(t, "low", low.Severity)
	assert.False(t, low.ActionRequired)
}
