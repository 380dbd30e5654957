package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/internal/policy/budget"
	"github.com/cloudgov/costguard/internal/policy/tags"
	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/services/decision"
)

func newDecisionRouter(t *testing.T) (chi.Router, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	h := NewDecisionHandler(env.decisions, zap.NewNop())

	r := chi.NewRouter()
	r.Post("/decisions", h.HandleDecide)
	return r, env
}

func TestHandleDecideAuthorized(t *testing.T) {
	router, _ := newDecisionRouter(t)

	rec := postJSON(t, router, "/decisions", decision.DecisionRequest{
		Action: models.ActionDescriptor{Action: "stop_instances", EstimatedImpact: 10},
		BudgetFacts: &budget.Facts{
			CurrentSpend: 5000,
			Budget:       budget.Limits{Limit: 50000},
			DaysElapsed:  10,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome decision.Outcome
	decodeData(t, rec, &outcome)
	assert.True(t, outcome.Authorized)
	assert.Equal(t, decision.ClassificationClean, outcome.Classification)
	assert.Nil(t, outcome.Approval)
}

func TestHandleDecideGated(t *testing.T) {
	router, _ := newDecisionRouter(t)

	rec := postJSON(t, router, "/decisions", decision.DecisionRequest{
		Action: models.ActionDescriptor{Action: "delete_volumes", EstimatedImpact: 500, RiskLevel: "high"},
		TagFacts: &tags.Facts{
			Tags: map[string]string{"Environment": "prod"},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var outcome decision.Outcome
	decodeData(t, rec, &outcome)
	assert.False(t, outcome.Authorized)
	assert.Equal(t, decision.ClassificationHardDeny, outcome.Classification)
	require.NotNil(t, outcome.Approval)
	assert.Equal(t, models.StatusPending, outcome.Approval.Status)
}

func TestHandleDecideMissingFacts(t *testing.T) {
	router, _ := newDecisionRouter(t)

	rec := postJSON(t, router, "/decisions", decision.DecisionRequest{
		Action: models.ActionDescriptor{Action: "stop_instances"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDecideMalformedBody(t *testing.T) {
	router, _ := newDecisionRouter(t)

	req, rec := newRawPost("/decisions", "{")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
