package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/internal/policy"
	"github.com/cloudgov/costguard/middleware"
	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/repositories"
	"github.com/cloudgov/costguard/services/approval"
	"github.com/cloudgov/costguard/utils"
)

// ApprovalHandler exposes the approval workflow over HTTP
type ApprovalHandler struct {
	approvals *approval.Service
	auditRepo repositories.AuditRepository
	logger    *zap.Logger
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(approvals *approval.Service, auditRepo repositories.AuditRepository, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		approvals: approvals,
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// CreateApprovalRequest is the body for directly opening an approval request
type CreateApprovalRequest struct {
	Action models.ActionDescriptor `json:"action"`
}

// HandleCreate handles POST /api/v1/approvals
// Opens an approval request for an action without a policy verdict, for
// callers gating actions by class alone. Decision-driven requests go
// through the decisions endpoint instead.
func (h *ApprovalHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req.Action); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	created, err := h.approvals.Create(r.Context(), req.Action, policy.Verdict{Allow: true, Violations: []string{}})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, created)
}

// HandleList handles GET /api/v1/approvals
func (h *ApprovalHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	requests, err := h.approvals.List(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, requests)
}

// HandleListPending handles GET /api/v1/approvals/pending
func (h *ApprovalHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	requests, err := h.approvals.ListPending(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, requests)
}

// HandleGet handles GET /api/v1/approvals/{id}
func (h *ApprovalHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	req, err := h.approvals.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, req)
}

// HandleTrail handles GET /api/v1/approvals/{id}/audit
func (h *ApprovalHandler) HandleTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	// Ensure the request exists so missing ids return 404, not an empty trail
	if _, err := h.approvals.Get(r.Context(), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	trail, err := h.auditRepo.ListByApprovalID(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, trail)
}

// DecisionBody carries the optional reason for approve/reject calls
type DecisionBody struct {
	Reason string `json:"reason,omitempty"`
}

// HandleApprove handles POST /api/v1/approvals/{id}/approve
func (h *ApprovalHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	updated, err := h.approvals.Approve(r.Context(), id, h.actor(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, updated)
}

// HandleReject handles POST /api/v1/approvals/{id}/reject
func (h *ApprovalHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var body DecisionBody
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	updated, err := h.approvals.Reject(r.Context(), id, h.actor(r), body.Reason)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, updated)
}

// HandleCancel handles POST /api/v1/approvals/{id}/cancel
func (h *ApprovalHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	updated, err := h.approvals.Cancel(r.Context(), id, h.actor(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, updated)
}

// HandleExecute handles POST /api/v1/approvals/{id}/execute
func (h *ApprovalHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	updated, err := h.approvals.Execute(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, updated)
}

// HandleRetry handles POST /api/v1/approvals/{id}/retry
func (h *ApprovalHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	updated, err := h.approvals.Retry(r.Context(), id, h.actor(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, updated)
}

// actor resolves the acting identity: authenticated subject when present,
// otherwise the X-Actor header for unauthenticated deployments.
func (h *ApprovalHandler) actor(r *http.Request) string {
	if identity := middleware.GetIdentityFromContext(r.Context()); identity != nil {
		return identity.Subject
	}
	return r.Header.Get("X-Actor")
}

func (h *ApprovalHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid approval id", map[string]interface{}{"id": raw})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
