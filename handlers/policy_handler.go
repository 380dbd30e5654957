package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/cloudgov/costguard/internal/policy/budget"
	"github.com/cloudgov/costguard/internal/policy/tags"
	"github.com/cloudgov/costguard/services/decision"
	"github.com/cloudgov/costguard/utils"
)

// PolicyHandler exposes direct policy evaluation endpoints
type PolicyHandler struct {
	decisions *decision.Service
	logger    *zap.Logger
}

// NewPolicyHandler creates a new PolicyHandler
func NewPolicyHandler(decisions *decision.Service, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{
		decisions: decisions,
		logger:    logger,
	}
}

// HandleGetPolicies handles GET /api/v1/policies
// Returns the loaded policy configuration
func (h *PolicyHandler) HandleGetPolicies(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.decisions.Policies())
}

// HandleBudgetCheck handles POST /api/v1/policies/budget/check
func (h *PolicyHandler) HandleBudgetCheck(w http.ResponseWriter, r *http.Request) {
	var facts budget.Facts
	if err := json.NewDecoder(r.Body).Decode(&facts); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	verdict, err := h.decisions.CheckBudget(r.Context(), facts)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, verdict)
}

// BudgetForecastResponse pairs the projection report with its alert, when any
type BudgetForecastResponse struct {
	Report *budget.ForecastReport `json:"report"`
	Alert  *budget.Alert          `json:"alert,omitempty"`
}

// HandleBudgetForecast handles POST /api/v1/policies/budget/forecast
func (h *PolicyHandler) HandleBudgetForecast(w http.ResponseWriter, r *http.Request) {
	var facts budget.Facts
	if err := json.NewDecoder(r.Body).Decode(&facts); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	report, err := h.decisions.Forecast(r.Context(), facts)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, BudgetForecastResponse{
		Report: report,
		Alert:  budget.NewAlert(facts),
	})
}

// TagValidationResponse carries the verdict plus remediation suggestions
type TagValidationResponse struct {
	Allow       bool     `json:"allow"`
	Violations  []string `json:"violations"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// HandleTagsValidate handles POST /api/v1/policies/tags/validate
func (h *PolicyHandler) HandleTagsValidate(w http.ResponseWriter, r *http.Request) {
	var facts tags.Facts
	if err := json.NewDecoder(r.Body).Decode(&facts); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	verdict, err := h.decisions.ValidateTags(r.Context(), facts)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	resp := TagValidationResponse{
		Allow:      verdict.Allow,
		Violations: verdict.Violations,
	}
	if len(verdict.Violations) > 0 {
		resp.Suggestions = tags.SuggestFixes(h.decisions.Policies().Tags, tags.Resource{Tags: facts.Tags})
	}

	_ = utils.WriteOK(w, resp)
}

// TagAuditRequest is the body for the fleet-wide tag audit
type TagAuditRequest struct {
	Resources []tags.Resource `json:"resources"`
}

// HandleTagsAudit handles POST /api/v1/policies/tags/audit
func (h *PolicyHandler) HandleTagsAudit(w http.ResponseWriter, r *http.Request) {
	var req TagAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if len(req.Resources) == 0 {
		_ = utils.WriteBadRequest(w, "At least one resource is required", nil)
		return
	}

	result := h.decisions.AuditResources(r.Context(), req.Resources)
	_ = utils.WriteOK(w, result)
}
