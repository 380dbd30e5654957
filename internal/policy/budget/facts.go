package budget

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cloudgov/costguard/internal/policy"
)

// PolicyName identifies the budget enforcement policy.
const PolicyName = "budget"

// DefaultThreshold is applied when the caller omits budget.threshold.
const DefaultThreshold = 0.9

// ErrZeroDaysElapsed rejects burn-rate evaluation before any rule runs; a
// zero elapsed-day count must never be silently defaulted.
var ErrZeroDaysElapsed = errors.New("days_elapsed must be greater than zero")

// Limits holds the budget configuration portion of the facts.
type Limits struct {
	Limit     float64 `json:"limit" validate:"gt=0"`
	Threshold float64 `json:"threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
}

// Facts is the fact shape for one budget evaluation: spend observed so far,
// the budget it draws against, the caller's forecast, and how far into the
// billing period the observation is.
type Facts struct {
	CurrentSpend  float64 `json:"current_spend" validate:"gte=0"`
	Budget        Limits  `json:"budget"`
	ForecastSpend float64 `json:"forecast_spend" validate:"gte=0"`
	DaysElapsed   int     `json:"days_elapsed" validate:"lte=31"`
}

var validate = validator.New()

// ValidateFacts checks the fact invariants before evaluation and returns an
// InputShapeError (or ErrZeroDaysElapsed) describing the first problem.
func ValidateFacts(f Facts) error {
	if f.DaysElapsed <= 0 {
		return ErrZeroDaysElapsed
	}
	if err := validate.Struct(f); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			reasons := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				reasons = append(reasons, fieldReason(fe))
			}
			return &policy.InputShapeError{Policy: PolicyName, Reason: strings.Join(reasons, "; ")}
		}
		return err
	}
	return nil
}

func fieldReason(fe validator.FieldError) string {
	switch fe.StructField() {
	case "CurrentSpend":
		return "current_spend must be zero or greater"
	case "Limit":
		return "budget.limit must be greater than zero"
	case "Threshold":
		return "budget.threshold must be in (0, 1]"
	case "DaysElapsed":
		return "days_elapsed must be at most 31"
	default:
		return fe.Error()
	}
}

// threshold returns the effective alert threshold for the facts.
func (f Facts) threshold() float64 {
	if f.Budget.Threshold == 0 {
		return DefaultThreshold
	}
	return f.Budget.Threshold
}

// dailyBurn is the average spend per elapsed day. ValidateFacts guarantees
// DaysElapsed > 0 by the time rules run.
func (f Facts) dailyBurn() float64 {
	return f.CurrentSpend / float64(f.DaysElapsed)
}
