// Package approval implements the approval workflow that gates action
// execution: request lifecycle, auto-approval, manual sign-off, and the
// execute path with dry-run support and bounded retries.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/internal/policy"
	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/repositories"
	"github.com/cloudgov/costguard/services"
	"github.com/cloudgov/costguard/services/audit"
)

// SystemActor marks transitions performed by the engine itself.
const SystemActor = "system"

// ExecutionResult is what an executor reports back after performing the
// real action.
type ExecutionResult struct {
	Output           string   `json:"output,omitempty"`
	ResourcesChanged []string `json:"resources_changed,omitempty"`
}

// Executor performs the real-world side effect of an approved action. The
// call may block; the service applies the configured timeout. Dry-run
// requests never reach an Executor.
type Executor interface {
	Execute(ctx context.Context, action models.ActionDescriptor) (*ExecutionResult, error)
}

// Config holds approval service configuration
type Config struct {
	// MaxExecuteAttempts bounds execute retries; once reached the request
	// is permanently failed.
	MaxExecuteAttempts int

	// ExecuteTimeout is applied to every real executor call.
	ExecuteTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxExecuteAttempts: 3,
		ExecuteTimeout:     30 * time.Second,
	}
}

// AutoApprovalRules is the predicate deciding whether a fresh request skips
// the human step: safe action class, zero violations, and estimated impact
// below the ceiling. High-risk and manual-only actions never qualify.
type AutoApprovalRules struct {
	AutoApproveActions   []string
	ManualOnlyActions    []string
	MaxAutoApproveImpact float64
}

// Eligible reports whether the action qualifies for auto-approval under the
// triggering verdict.
func (r AutoApprovalRules) Eligible(action models.ActionDescriptor, verdict policy.Verdict) bool {
	if action.RiskLevel == "high" {
		return false
	}
	for _, manual := range r.ManualOnlyActions {
		if action.Action == manual {
			return false
		}
	}
	if !verdict.Allow || len(verdict.Violations) > 0 {
		return false
	}
	for _, allowed := range r.AutoApproveActions {
		if action.Action == allowed && action.EstimatedImpact < r.MaxAutoApproveImpact {
			return true
		}
	}
	return false
}

// executeStripes bounds the per-id execute lock table.
const executeStripes = 64

// Service manages the approval request lifecycle. The store serializes
// individual transitions per request id; the service additionally holds a
// per-id lock across the whole execute path so at most one call ever reaches
// the real side effect.
type Service struct {
	store    repositories.ApprovalRepository
	audit    *audit.AuditService
	executor Executor
	rules    AutoApprovalRules
	config   Config
	locks    [executeStripes]chan struct{}
	logger   *zap.Logger
}

// NewService creates a new approval Service
func NewService(store repositories.ApprovalRepository, auditSvc *audit.AuditService, executor Executor, rules AutoApprovalRules, config Config, logger *zap.Logger) *Service {
	if config.MaxExecuteAttempts <= 0 {
		config.MaxExecuteAttempts = DefaultConfig().MaxExecuteAttempts
	}
	if config.ExecuteTimeout <= 0 {
		config.ExecuteTimeout = DefaultConfig().ExecuteTimeout
	}

	s := &Service{
		store:    store,
		audit:    auditSvc,
		executor: executor,
		rules:    rules,
		config:   config,
		logger:   logger,
	}
	for i := range s.locks {
		s.locks[i] = make(chan struct{}, 1)
	}
	return s
}

// Create registers a pending approval request for the action, annotated with
// the verdict that gated it. When the auto-approval predicate holds, the
// request moves to auto_approved synchronously before returning.
func (s *Service) Create(ctx context.Context, action models.ActionDescriptor, verdict policy.Verdict) (*models.ApprovalRequest, error) {
	req := models.NewApprovalRequest(action, verdict)
	if err := s.store.Create(ctx, req); err != nil {
		return nil, services.WrapInternal("failed to store approval request", err)
	}

	s.auditTransition(req.ID, models.AuditActionApprovalCreated, action.Requestor, string(req.Status), action)

	if !s.rules.Eligible(action, verdict) {
		s.logger.Info("approval required",
			zap.String("id", req.ID.String()),
			zap.String("action", action.Action))
		return req, nil
	}

	updated, err := s.store.UpdateStatus(ctx, req.ID, models.StatusPending, repositories.ApprovalChange{
		To:     models.StatusAutoApproved,
		Actor:  SystemActor,
		Reason: "auto-approved by policy",
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	s.auditTransition(req.ID, models.AuditActionAutoApproved, SystemActor, string(updated.Status), nil)
	s.logger.Info("auto-approved action",
		zap.String("id", req.ID.String()),
		zap.String("action", action.Action))
	return updated, nil
}

// Get retrieves the current snapshot of a request
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return req, nil
}

// ListPending retrieves all pending requests, oldest first
func (s *Service) ListPending(ctx context.Context) ([]*models.ApprovalRequest, error) {
	return s.store.ListPending(ctx)
}

// List retrieves requests with pagination, newest first
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.ApprovalRequest, error) {
	return s.store.List(ctx, limit, offset)
}

// Approve moves a pending request to approved. Calling on a non-pending
// request fails with an invalid-transition error and mutates nothing.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approver string) (*models.ApprovalRequest, error) {
	if approver == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "approver is required", nil)
	}

	updated, err := s.store.UpdateStatus(ctx, id, models.StatusPending, repositories.ApprovalChange{
		To:    models.StatusApproved,
		Actor: approver,
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	s.auditTransition(id, models.AuditActionApproved, approver, string(updated.Status), nil)
	s.logger.Info("request approved",
		zap.String("id", id.String()),
		zap.String("approver", approver))
	return updated, nil
}

// Reject moves a pending request to rejected, which is terminal.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, approver, reason string) (*models.ApprovalRequest, error) {
	if approver == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "approver is required", nil)
	}

	updated, err := s.store.UpdateStatus(ctx, id, models.StatusPending, repositories.ApprovalChange{
		To:     models.StatusRejected,
		Actor:  approver,
		Reason: reason,
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	s.auditTransition(id, models.AuditActionRejected, approver, string(updated.Status),
		map[string]string{"reason": reason})
	s.logger.Info("request rejected",
		zap.String("id", id.String()),
		zap.String("approver", approver),
		zap.String("reason", reason))
	return updated, nil
}

// Cancel rejects a pending request on behalf of the caller with the
// implicit reason "cancelled".
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor string) (*models.ApprovalRequest, error) {
	if actor == "" {
		actor = SystemActor
	}

	updated, err := s.store.UpdateStatus(ctx, id, models.StatusPending, repositories.ApprovalChange{
		To:     models.StatusRejected,
		Actor:  actor,
		Reason: "cancelled",
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	s.auditTransition(id, models.AuditActionCancelled, actor, string(updated.Status), nil)
	return updated, nil
}

// Retry re-enters approved from execution_failed, bounded by the configured
// attempt cap. Once the cap is reached the request is permanently failed.
func (s *Service) Retry(ctx context.Context, id uuid.UUID, actor string) (*models.ApprovalRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	if req.Status != models.StatusExecutionFailed {
		return nil, s.transitionError(req.Status, models.StatusApproved)
	}
	if req.ExecuteAttempts >= s.config.MaxExecuteAttempts {
		return nil, services.NewDomainError(services.ErrorTypeConflict,
			"execution retry limit reached, request permanently failed", nil).
			WithDetail("attempts", req.ExecuteAttempts)
	}
	if actor == "" {
		actor = SystemActor
	}

	updated, err := s.store.UpdateStatus(ctx, id, models.StatusExecutionFailed, repositories.ApprovalChange{
		To:     models.StatusApproved,
		Actor:  actor,
		Reason: fmt.Sprintf("retry %d of %d", req.ExecuteAttempts, s.config.MaxExecuteAttempts),
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	s.auditTransition(id, models.AuditActionRetryRequested, actor, string(updated.Status),
		map[string]int{"attempts": updated.ExecuteAttempts})
	return updated, nil
}

// Execute runs the approved action. Dry-run requests produce a change-plan
// artifact and transition to executed without any external call; real
// requests invoke the executor under the configured timeout and transition
// to executed or execution_failed. Per-id locking guarantees at most one
// call reaches the real side effect.
func (s *Service) Execute(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	lock := s.locks[int(id[0])%executeStripes]
	select {
	case lock <- struct{}{}:
		defer func() { <-lock }()
	case <-ctx.Done():
		return nil, services.WrapExternal("execute cancelled while waiting for in-flight transition", ctx.Err())
	}

	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	if req.Status != models.StatusApproved && req.Status != models.StatusAutoApproved {
		return nil, s.transitionError(req.Status, models.StatusExecuted)
	}

	if req.Action.DryRun {
		return s.executeDryRun(ctx, req)
	}
	return s.executeReal(ctx, req)
}

func (s *Service) executeDryRun(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	plan := buildChangePlan(req)

	updated, err := s.store.UpdateStatus(ctx, req.ID, req.Status, repositories.ApprovalChange{
		To:                models.StatusExecuted,
		Actor:             SystemActor,
		Reason:            "dry run",
		ChangePlan:        plan,
		IncrementAttempts: true,
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	s.auditTransition(req.ID, models.AuditActionExecuted, SystemActor, "dry_run", json.RawMessage(plan))
	s.logger.Info("dry run executed",
		zap.String("id", req.ID.String()),
		zap.String("action", req.Action.Action))
	return updated, nil
}

func (s *Service) executeReal(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	if s.executor == nil {
		return nil, services.NewDomainError(services.ErrorTypeInternal, "no executor configured", nil)
	}

	execCtx, cancel := context.WithTimeout(ctx, s.config.ExecuteTimeout)
	defer cancel()

	result, execErr := s.executor.Execute(execCtx, req.Action)
	if execErr != nil {
		timedOut := errors.Is(execErr, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded)

		updated, err := s.store.UpdateStatus(ctx, req.ID, req.Status, repositories.ApprovalChange{
			To:                models.StatusExecutionFailed,
			Actor:             SystemActor,
			ExecutionError:    execErr.Error(),
			IncrementAttempts: true,
		})
		if err != nil {
			return nil, s.mapStoreError(err)
		}

		s.auditTransition(req.ID, models.AuditActionExecutionFailed, SystemActor, string(updated.Status),
			map[string]string{"error": execErr.Error()})
		s.logger.Error("action execution failed",
			zap.String("id", req.ID.String()),
			zap.String("action", req.Action.Action),
			zap.Bool("timed_out", timedOut),
			zap.Error(execErr))

		if timedOut {
			return updated, services.WrapExternal("action execution timed out", execErr)
		}
		return updated, services.WrapExternal("action execution failed", execErr)
	}

	updated, err := s.store.UpdateStatus(ctx, req.ID, req.Status, repositories.ApprovalChange{
		To:                models.StatusExecuted,
		Actor:             SystemActor,
		IncrementAttempts: true,
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	s.auditTransition(req.ID, models.AuditActionExecuted, SystemActor, string(updated.Status), result)
	s.logger.Info("action executed",
		zap.String("id", req.ID.String()),
		zap.String("action", req.Action.Action))
	return updated, nil
}

// buildChangePlan renders the artifact a dry run produces instead of
// touching any external resource.
func buildChangePlan(req *models.ApprovalRequest) json.RawMessage {
	operations := make([]string, 0, len(req.Action.Resources))
	for _, res := range req.Action.Resources {
		operations = append(operations, fmt.Sprintf("%s %s", req.Action.Action, res))
	}

	plan := map[string]interface{}{
		"mode":             "dry_run",
		"action":           req.Action.Action,
		"operations":       operations,
		"estimated_impact": req.Action.EstimatedImpact,
		"generated_at":     time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return json.RawMessage(`{"mode":"dry_run"}`)
	}
	return raw
}

func (s *Service) transitionError(from, to models.ApprovalStatus) error {
	msg := "invalid approval state transition"
	if from.Terminal() {
		msg = "approval request is in a terminal state"
	}
	return services.NewDomainError(services.ErrorTypeConflict, msg, nil).
		WithDetail("from", string(from)).
		WithDetail("to", string(to))
}

func (s *Service) mapStoreError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return services.NewDomainError(services.ErrorTypeNotFound, "approval request not found", err)
	case errors.Is(err, repositories.ErrStatusConflict), errors.Is(err, repositories.ErrInvalidTransition):
		return services.NewDomainError(services.ErrorTypeConflict, "invalid approval state transition", err)
	default:
		return services.WrapInternal("approval store error", err)
	}
}

func (s *Service) auditTransition(id uuid.UUID, action models.AuditAction, actor, outcome string, details interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogTransition(id, action, actor, outcome, details); err != nil {
		s.logger.Warn("failed to audit approval transition",
			zap.String("id", id.String()),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}
