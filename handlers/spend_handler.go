package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/internal/policy/budget"
	"github.com/cloudgov/costguard/repositories"
	"github.com/cloudgov/costguard/services/decision"
	"github.com/cloudgov/costguard/services/spend"
	"github.com/cloudgov/costguard/utils"
)

// SpendHandler exposes spend tracking and the recorded-spend budget check
type SpendHandler struct {
	spend     *spend.Service
	decisions *decision.Service
	logger    *zap.Logger
}

// NewSpendHandler creates a new SpendHandler
func NewSpendHandler(spendSvc *spend.Service, decisions *decision.Service, logger *zap.Logger) *SpendHandler {
	return &SpendHandler{
		spend:     spendSvc,
		decisions: decisions,
		logger:    logger,
	}
}

// RecordCostRequest is the body for recording a cost observation
type RecordCostRequest struct {
	ScopeKey   string  `json:"scope_key"`
	Cost       float64 `json:"cost"`
	Currency   string  `json:"currency,omitempty"`
	Service    string  `json:"service,omitempty"`
	ResourceID string  `json:"resource_id,omitempty"`
}

// HandleRecordCost handles POST /api/v1/spend
func (h *SpendHandler) HandleRecordCost(w http.ResponseWriter, r *http.Request) {
	var req RecordCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	err := h.spend.RecordCost(r.Context(), repositories.SpendRecord{
		ScopeKey:   req.ScopeKey,
		Cost:       req.Cost,
		Currency:   req.Currency,
		Service:    req.Service,
		ResourceID: req.ResourceID,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleSummary handles GET /api/v1/spend/{scope}
func (h *SpendHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	summary, err := h.spend.Summary(r.Context(), scope)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, summary)
}

// HandleTopSpenders handles GET /api/v1/spend/top
func (h *SpendHandler) HandleTopSpenders(w http.ResponseWriter, r *http.Request) {
	period := repositories.SpendPeriod(r.URL.Query().Get("period"))
	if period != repositories.PeriodDaily && period != repositories.PeriodMonthly {
		period = repositories.PeriodMonthly
	}

	spenders, err := h.spend.TopSpenders(r.Context(), period, queryInt(r, "limit", 10))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, spenders)
}

// ScopeBudgetCheckRequest supplies the budget to check recorded spend against
type ScopeBudgetCheckRequest struct {
	Budget budget.Limits `json:"budget"`
}

// HandleScopeBudgetCheck handles POST /api/v1/spend/{scope}/check
// Derives budget facts from recorded spend and evaluates the budget policy.
func (h *SpendHandler) HandleScopeBudgetCheck(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")

	var req ScopeBudgetCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	facts, err := h.spend.BudgetFacts(r.Context(), scope, req.Budget, time.Now().UTC())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	verdict, err := h.decisions.CheckBudget(r.Context(), facts)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, verdict)
}
