// Package decision runs policy evaluations and routes the results: clean
// verdicts authorize immediately, anything else is handed to the approval
// workflow.
package decision

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cloudgov/costguard/internal/policy"
	"github.com/cloudgov/costguard/internal/policy/budget"
	"github.com/cloudgov/costguard/internal/policy/policyfile"
	"github.com/cloudgov/costguard/internal/policy/tags"
	"github.com/cloudgov/costguard/middleware"
	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/services"
	"github.com/cloudgov/costguard/services/approval"
	"github.com/cloudgov/costguard/services/audit"
	"github.com/cloudgov/costguard/utils"
)

// Classification buckets a merged verdict for routing.
type Classification string

const (
	// ClassificationClean is an allow with zero violations.
	ClassificationClean Classification = "clean"
	// ClassificationSoft is an allow carrying advisory violations.
	ClassificationSoft Classification = "soft"
	// ClassificationHardDeny is any verdict with Allow false.
	ClassificationHardDeny Classification = "hard_deny"
)

// Classify buckets a verdict. Hard deny wins over everything else.
func Classify(v policy.Verdict) Classification {
	if !v.Allow {
		return ClassificationHardDeny
	}
	if len(v.Violations) > 0 {
		return ClassificationSoft
	}
	return ClassificationClean
}

// DecisionRequest carries the action under consideration together with the
// facts each policy domain should evaluate. Nil facts skip that domain.
type DecisionRequest struct {
	Action      models.ActionDescriptor `json:"action" validate:"required"`
	BudgetFacts *budget.Facts           `json:"budget_facts,omitempty"`
	TagFacts    *tags.Facts             `json:"tag_facts,omitempty"`
}

// Outcome is the pipeline result. Authorized means the caller may proceed
// immediately; otherwise Approval holds the gating request.
type Outcome struct {
	Verdict        policy.Verdict          `json:"verdict"`
	Classification Classification          `json:"classification"`
	Authorized     bool                    `json:"authorized"`
	Approval       *models.ApprovalRequest `json:"approval,omitempty"`
}

// Service evaluates the configured policies against caller-supplied facts
// and gates actions through the approval workflow.
type Service struct {
	policies  *policyfile.File
	approvals *approval.Service
	audit     *audit.AuditService
	logger    *zap.Logger
}

// NewService creates a new decision Service
func NewService(policies *policyfile.File, approvals *approval.Service, auditSvc *audit.AuditService, logger *zap.Logger) *Service {
	return &Service{
		policies:  policies,
		approvals: approvals,
		audit:     auditSvc,
		logger:    logger,
	}
}

// Policies exposes the loaded policy configuration
func (s *Service) Policies() *policyfile.File {
	return s.policies
}

// CheckBudget validates the facts and evaluates the budget policy.
func (s *Service) CheckBudget(ctx context.Context, facts budget.Facts) (policy.Verdict, error) {
	if err := budget.ValidateFacts(facts); err != nil {
		return policy.Verdict{}, mapFactsError(err)
	}

	verdict := policy.Evaluate(s.policies.BudgetPolicy(), facts)
	s.logger.Debug("budget policy evaluated",
		zap.Bool("allow", verdict.Allow),
		zap.Int("violations", len(verdict.Violations)))
	return verdict, nil
}

// ValidateTags validates the facts and evaluates the tag policy against a
// resource's tag map.
func (s *Service) ValidateTags(ctx context.Context, facts tags.Facts) (policy.Verdict, error) {
	if err := tags.ValidateFacts(facts); err != nil {
		return policy.Verdict{}, mapFactsError(err)
	}

	verdict := policy.Evaluate(s.policies.TagPolicy(), facts)
	s.logger.Debug("tag policy evaluated",
		zap.Bool("allow", verdict.Allow),
		zap.Int("violations", len(verdict.Violations)))
	return verdict, nil
}

// Forecast produces the budget projection report for the given facts.
func (s *Service) Forecast(ctx context.Context, facts budget.Facts) (*budget.ForecastReport, error) {
	if err := budget.ValidateFacts(facts); err != nil {
		return nil, mapFactsError(err)
	}
	report := budget.Forecast(facts, s.policies.Budget)
	return &report, nil
}

// AuditResources evaluates the tag policy over a fleet of resources and
// aggregates compliance.
func (s *Service) AuditResources(ctx context.Context, resources []tags.Resource) tags.AuditResult {
	return tags.AuditResources(s.policies.TagPolicy(), resources)
}

// Decide runs every applicable policy domain, merges the verdicts, and
// routes by classification: clean verdicts authorize the action directly,
// soft and hard-deny verdicts open an approval request. Every decision is
// audited regardless of outcome.
func (s *Service) Decide(ctx context.Context, req DecisionRequest) (*Outcome, error) {
	if req.Action.Action == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "action is required", nil)
	}
	if err := utils.ValidateStruct(req.Action); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), err)
	}

	verdicts := make([]policy.Verdict, 0, 2)
	if req.BudgetFacts != nil {
		v, err := s.CheckBudget(ctx, *req.BudgetFacts)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	if req.TagFacts != nil {
		v, err := s.ValidateTags(ctx, *req.TagFacts)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	if len(verdicts) == 0 {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"at least one of budget_facts or tag_facts is required", nil)
	}

	merged := policy.Merge(verdicts...)
	class := Classify(merged)

	s.logger.Info("decision evaluated",
		zap.String("action", req.Action.Action),
		zap.String("classification", string(class)),
		zap.Bool("allow", merged.Allow),
		zap.Int("violations", len(merged.Violations)))

	if class == ClassificationClean {
		s.auditDecision(ctx, req.Action, merged, "authorized")
		return &Outcome{
			Verdict:        merged,
			Classification: class,
			Authorized:     true,
		}, nil
	}

	s.auditDecision(ctx, req.Action, merged, string(class))

	gated, err := s.approvals.Create(ctx, req.Action, merged)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Verdict:        merged,
		Classification: class,
		Authorized:     false,
		Approval:       gated,
	}, nil
}

func (s *Service) auditDecision(ctx context.Context, action models.ActionDescriptor, verdict policy.Verdict, outcome string) {
	if s.audit == nil {
		return
	}
	requestID := middleware.GetRequestIDFromContext(ctx)
	if err := s.audit.LogDecision(action, verdict, outcome, requestID); err != nil {
		s.logger.Warn("failed to audit decision",
			zap.String("action", action.Action),
			zap.Error(err))
	}
}

func mapFactsError(err error) error {
	var shapeErr *policy.InputShapeError
	switch {
	case errors.Is(err, budget.ErrZeroDaysElapsed):
		return services.NewDomainError(services.ErrorTypeValidation,
			"days_elapsed must be greater than zero", err)
	case errors.As(err, &shapeErr):
		return services.NewDomainError(services.ErrorTypeValidation,
			"facts do not match the policy's fact shape", err).
			WithDetail("reason", shapeErr.Reason)
	default:
		return services.WrapInternal("facts validation failed", err)
	}
}
