package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/internal/policy"
	"github.com/cloudgov/costguard/internal/policy/budget"
	"github.com/cloudgov/costguard/internal/policy/tags"
)

func newPolicyRouter(t *testing.T) chi.Router {
	t.Helper()
	env := newTestEnv(t)
	h := NewPolicyHandler(env.decisions, zap.NewNop())

	r := chi.NewRouter()
	r.Get("/policies", h.HandleGetPolicies)
	r.Post("/policies/budget/check", h.HandleBudgetCheck)
	r.Post("/policies/budget/forecast", h.HandleBudgetForecast)
	r.Post("/policies/tags/validate", h.HandleTagsValidate)
	r.Post("/policies/tags/audit", h.HandleTagsAudit)
	return r
}

func TestHandleGetPolicies(t *testing.T) {
	router := newPolicyRouter(t)

	rec := get(t, router, "/policies")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "strict")
	assert.Contains(t, rec.Body.String(), "delete_snapshots")
}

func TestHandleBudgetCheck(t *testing.T) {
	router := newPolicyRouter(t)

	rec := postJSON(t, router, "/policies/budget/check", budget.Facts{
		CurrentSpend: 10000,
		Budget:       budget.Limits{Limit: 50000},
		DaysElapsed:  10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var verdict policy.Verdict
	decodeData(t, rec, &verdict)
	assert.True(t, verdict.Allow)
	assert.Empty(t, verdict.Violations)
}

func TestHandleBudgetCheckViolation(t *testing.T) {
	router := newPolicyRouter(t)

	rec := postJSON(t, router, "/policies/budget/check", budget.Facts{
		CurrentSpend: 49000,
		Budget:       budget.Limits{Limit: 50000},
		DaysElapsed:  10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var verdict policy.Verdict
	decodeData(t, rec, &verdict)
	assert.False(t, verdict.Allow)
	assert.NotEmpty(t, verdict.Violations)
}

func TestHandleBudgetCheckInvalidFacts(t *testing.T) {
	router := newPolicyRouter(t)

	rec := postJSON(t, router, "/policies/budget/check", budget.Facts{
		CurrentSpend: 100,
		Budget:       budget.Limits{Limit: 50000},
		DaysElapsed:  0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "days_elapsed")
}

func TestHandleBudgetCheckMalformedBody(t *testing.T) {
	router := newPolicyRouter(t)

	req, rec := newRawPost("/policies/budget/check", "{not json")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBudgetForecast(t *testing.T) {
	router := newPolicyRouter(t)

	rec := postJSON(t, router, "/policies/budget/forecast", budget.Facts{
		CurrentSpend: 48000,
		Budget:       budget.Limits{Limit: 50000},
		DaysElapsed:  10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BudgetForecastResponse
	decodeData(t, rec, &resp)
	require.NotNil(t, resp.Report)
	assert.True(t, resp.Report.WillExceedBudget)
	require.NotNil(t, resp.Alert)
	assert.Equal(t, "high", resp.Alert.Severity)
}

func TestHandleTagsValidate(t *testing.T) {
	router := newPolicyRouter(t)

	rec := postJSON(t, router, "/policies/tags/validate", tags.Facts{
		Tags: map[string]string{"Environment": "dev"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TagValidationResponse
	decodeData(t, rec, &resp)
	assert.False(t, resp.Allow)
	assert.NotEmpty(t, resp.Violations)
	assert.NotEmpty(t, resp.Suggestions)
}

func TestHandleTagsValidateMissingMap(t *testing.T) {
	router := newPolicyRouter(t)

	// A body without a tags map is rejected before evaluation
	req, rec := newRawPost("/policies/tags/validate", `{}`)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tags map is required")
}

func TestHandleTagsValidateCompliant(t *testing.T) {
	router := newPolicyRouter(t)

	rec := postJSON(t, router, "/policies/tags/validate", tags.Facts{
		Tags: map[string]string{
			"Environment": "dev",
			"Team":        "platform",
			"CostCenter":  "12345",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TagValidationResponse
	decodeData(t, rec, &resp)
	assert.True(t, resp.Allow)
	assert.Empty(t, resp.Violations)
	assert.Empty(t, resp.Suggestions)
}

func TestHandleTagsAudit(t *testing.T) {
	router := newPolicyRouter(t)

	rec := postJSON(t, router, "/policies/tags/audit", TagAuditRequest{
		Resources: []tags.Resource{
			{ID: "i-1", Tags: map[string]string{"Environment": "dev", "Team": "platform", "CostCenter": "12345"}},
			{ID: "i-2", Tags: map[string]string{}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "i-2")
}

func TestHandleTagsAuditEmpty(t *testing.T) {
	router := newPolicyRouter(t)

	rec := postJSON(t, router, "/policies/tags/audit", TagAuditRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "resource"))
}
