package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/cloudgov/costguard/services/decision"
	"github.com/cloudgov/costguard/utils"
)

// DecisionHandler exposes the decision pipeline
type DecisionHandler struct {
	decisions *decision.Service
	logger    *zap.Logger
}

// NewDecisionHandler creates a new DecisionHandler
func NewDecisionHandler(decisions *decision.Service, logger *zap.Logger) *DecisionHandler {
	return &DecisionHandler{
		decisions: decisions,
		logger:    logger,
	}
}

// HandleDecide handles POST /api/v1/decisions
// Evaluates the configured policies against the supplied facts and either
// authorizes the action or opens an approval request.
func (h *DecisionHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	var req decision.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	outcome, err := h.decisions.Decide(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if outcome.Authorized {
		_ = utils.WriteOK(w, outcome)
		return
	}
	// Gated actions return 202 with the approval request to poll
	_ = utils.WriteJSON(w, http.StatusAccepted, utils.SuccessResponse{Data: outcome})
}
