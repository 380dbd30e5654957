// Package spend tracks observed costs per scope and turns them into the
// facts the budget policy evaluates.
package spend

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cloudgov/costguard/internal/policy/budget"
	"github.com/cloudgov/costguard/repositories"
	"github.com/cloudgov/costguard/services"
)

// Service records costs and derives budget facts from what was recorded.
type Service struct {
	repo   repositories.SpendRepository
	logger *zap.Logger
}

// NewService creates a new spend Service
func NewService(repo repositories.SpendRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// RecordCost records one cost observation for a scope
func (s *Service) RecordCost(ctx context.Context, rec repositories.SpendRecord) error {
	if rec.ScopeKey == "" {
		return services.NewDomainError(services.ErrorTypeValidation, "scope_key is required", nil)
	}
	if rec.Cost < 0 {
		return services.NewDomainError(services.ErrorTypeValidation, "cost must be non-negative", nil)
	}
	if rec.Currency == "" {
		rec.Currency = "USD"
	}

	if err := s.repo.RecordCost(ctx, rec); err != nil {
		return services.WrapInternal("failed to record cost", err)
	}

	s.logger.Debug("cost recorded",
		zap.String("scope", rec.ScopeKey),
		zap.Float64("cost", rec.Cost))
	return nil
}

// Summary returns daily and monthly totals for a scope
func (s *Service) Summary(ctx context.Context, scopeKey string) (*repositories.SpendSummary, error) {
	summary, err := s.repo.GetSpendSummary(ctx, scopeKey)
	if err != nil {
		return nil, services.WrapInternal("failed to load spend summary", err)
	}
	return summary, nil
}

// TopSpenders returns the highest-spending scopes for the period
func (s *Service) TopSpenders(ctx context.Context, period repositories.SpendPeriod, limit int) ([]repositories.SpenderInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	spenders, err := s.repo.TopSpenders(ctx, period, limit)
	if err != nil {
		return nil, services.WrapInternal("failed to load top spenders", err)
	}
	return spenders, nil
}

// BudgetFacts derives budget policy facts for a scope from recorded spend.
// The current month's total becomes current spend, and the day of month
// becomes days elapsed, so burn-rate projection works off real observations.
func (s *Service) BudgetFacts(ctx context.Context, scopeKey string, limits budget.Limits, now time.Time) (budget.Facts, error) {
	monthly, err := s.repo.GetPeriodSpend(ctx, scopeKey, repositories.PeriodMonthly, now)
	if err != nil {
		return budget.Facts{}, services.WrapInternal("failed to load period spend", err)
	}

	return budget.Facts{
		CurrentSpend: monthly,
		Budget:       limits,
		DaysElapsed:  now.Day(),
	}, nil
}

// Cleanup removes spend data older than the retention window
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	removed, err := s.repo.CleanupOldData(ctx, olderThan)
	if err != nil {
		return 0, services.WrapInternal("failed to clean up spend data", err)
	}
	if removed > 0 {
		s.logger.Info("spend data cleaned up", zap.Int64("rows", removed))
	}
	return removed, nil
}
