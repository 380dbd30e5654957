package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cloudgov/costguard/repositories"
)

// SpendRepository implements repositories.SpendRepository on Postgres with an
// upsert-per-period scheme.
type SpendRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSpendRepository creates a new spend repository
func NewSpendRepository(db *DB, logger *zap.Logger) repositories.SpendRepository {
	return &SpendRepository{
		db:     db,
		logger: logger,
	}
}

// RecordCost upserts the cost into the daily and monthly periods and records
// the individual transaction for auditing.
func (r *SpendRepository) RecordCost(ctx context.Context, rec repositories.SpendRecord) error {
	now := time.Now().UTC()

	if err := r.upsertCost(ctx, rec.ScopeKey, periodKey(now, repositories.PeriodDaily), rec.Cost, rec.Currency); err != nil {
		return fmt.Errorf("failed to record daily cost: %w", err)
	}
	if err := r.upsertCost(ctx, rec.ScopeKey, periodKey(now, repositories.PeriodMonthly), rec.Cost, rec.Currency); err != nil {
		return fmt.Errorf("failed to record monthly cost: %w", err)
	}

	query := `
		INSERT INTO spend_transactions (scope_key, cost, currency, service, resource_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query,
		rec.ScopeKey, rec.Cost, rec.Currency, nullString(rec.Service), nullString(rec.ResourceID), now); err != nil {
		return fmt.Errorf("failed to insert spend transaction: %w", err)
	}
	return nil
}

// GetPeriodSpend returns the total spend for the period containing now
func (r *SpendRepository) GetPeriodSpend(ctx context.Context, scopeKey string, period repositories.SpendPeriod, now time.Time) (float64, error) {
	query := `
		SELECT COALESCE(total_cost, 0)
		FROM spend_tracking
		WHERE scope_key = $1 AND period_key = $2
	`

	executor := GetExecutor(ctx, r.db)
	var totalCost float64
	err := executor.QueryRowContext(ctx, query, scopeKey, periodKey(now, period)).Scan(&totalCost)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query spend: %w", err)
	}
	return totalCost, nil
}

// GetSpendSummary returns daily and monthly totals for a scope
func (r *SpendRepository) GetSpendSummary(ctx context.Context, scopeKey string) (*repositories.SpendSummary, error) {
	now := time.Now().UTC()
	summary := &repositories.SpendSummary{}

	daily, err := r.GetPeriodSpend(ctx, scopeKey, repositories.PeriodDaily, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily spend: %w", err)
	}
	summary.DailySpend = daily

	monthly, err := r.GetPeriodSpend(ctx, scopeKey, repositories.PeriodMonthly, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly spend: %w", err)
	}
	summary.MonthlySpend = monthly

	return summary, nil
}

// TopSpenders returns the highest-spending scopes for the current period
func (r *SpendRepository) TopSpenders(ctx context.Context, period repositories.SpendPeriod, limit int) ([]repositories.SpenderInfo, error) {
	query := `
		SELECT scope_key, total_cost, currency
		FROM spend_tracking
		WHERE period_key = $1
		ORDER BY total_cost DESC
		LIMIT $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, periodKey(time.Now().UTC(), period), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top spenders: %w", err)
	}
	defer rows.Close()

	spenders := make([]repositories.SpenderInfo, 0)
	for rows.Next() {
		var info repositories.SpenderInfo
		if err := rows.Scan(&info.ScopeKey, &info.TotalCost, &info.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan spender info: %w", err)
		}
		spenders = append(spenders, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return spenders, nil
}

// CleanupOldData removes spend data older than the retention window.
// Should be called periodically to keep database size manageable.
func (r *SpendRepository) CleanupOldData(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	executor := GetExecutor(ctx, r.db)

	result, err := executor.ExecContext(ctx,
		`DELETE FROM spend_tracking WHERE period_key < $1`,
		periodKey(cutoff, repositories.PeriodDaily))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old spend data: %w", err)
	}
	trackingRows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	result, err = executor.ExecContext(ctx,
		`DELETE FROM spend_transactions WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old transactions: %w", err)
	}
	txRows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get transaction rows affected: %w", err)
	}

	r.logger.Info("cleaned up old spend data",
		zap.Int64("tracking_rows_deleted", trackingRows),
		zap.Int64("transaction_rows_deleted", txRows),
		zap.Time("cutoff", cutoff))

	return trackingRows + txRows, nil
}

func (r *SpendRepository) upsertCost(ctx context.Context, scopeKey, period string, cost float64, currency string) error {
	if currency == "" {
		currency = "USD"
	}
	query := `
		INSERT INTO spend_tracking (scope_key, period_key, total_cost, currency, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope_key, period_key)
		DO UPDATE SET
			total_cost = spend_tracking.total_cost + EXCLUDED.total_cost,
			updated_at = EXCLUDED.updated_at
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, scopeKey, period, cost, currency, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert cost: %w", err)
	}
	return nil
}

// periodKey returns a unique key for a time period
func periodKey(now time.Time, period repositories.SpendPeriod) string {
	switch period {
	case repositories.PeriodMonthly:
		return now.Format("2006-01")
	default:
		return now.Format("2006-01-02")
	}
}
