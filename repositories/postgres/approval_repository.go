package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/repositories"
)

// ApprovalRepository implements the repositories.ApprovalRepository interface.
// Transitions are serialized per request id with SELECT ... FOR UPDATE, so
// two concurrent transitions on one request cannot interleave while unrelated
// requests proceed on separate rows.
type ApprovalRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *DB, logger *zap.Logger) repositories.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

const approvalColumns = `
	id, action, resources, estimated_impact, risk_level, requestor, dry_run,
	decision_allow, decision_violations, status, approver, reason,
	execute_attempts, execution_error, change_plan, requested_at, decided_at, executed_at
`

// Create stores a new approval request
func (r *ApprovalRepository) Create(ctx context.Context, req *models.ApprovalRequest) error {
	resources, err := json.Marshal(req.Action.Resources)
	if err != nil {
		return fmt.Errorf("failed to marshal resources: %w", err)
	}
	violations, err := json.Marshal(req.Decision.Violations)
	if err != nil {
		return fmt.Errorf("failed to marshal violations: %w", err)
	}

	query := `
		INSERT INTO approval_requests (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		req.ID,
		req.Action.Action,
		resources,
		req.Action.EstimatedImpact,
		nullString(req.Action.RiskLevel),
		nullString(req.Action.Requestor),
		req.Action.DryRun,
		req.Decision.Allow,
		violations,
		req.Status,
		nullString(req.Approver),
		nullString(req.Reason),
		req.ExecuteAttempts,
		nullString(req.ExecutionError),
		nullBytes(req.ChangePlan),
		req.RequestedAt,
		req.DecidedAt,
		req.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval request: %w", err)
	}

	r.logger.Debug("approval request inserted",
		zap.String("id", req.ID.String()),
		zap.String("status", string(req.Status)))
	return nil
}

// GetByID retrieves an approval request with its full history
func (r *ApprovalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	executor := GetExecutor(ctx, r.db)

	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = $1`
	req, err := scanApproval(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}

	history, err := r.history(ctx, id)
	if err != nil {
		return nil, err
	}
	req.History = history
	return req, nil
}

// ListPending retrieves all pending approval requests, oldest first
func (r *ApprovalRepository) ListPending(ctx context.Context) ([]*models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + `
		FROM approval_requests
		WHERE status = $1
		ORDER BY requested_at ASC`
	return r.queryApprovals(ctx, query, models.StatusPending)
}

// List retrieves approval requests with pagination, newest first
func (r *ApprovalRepository) List(ctx context.Context, limit, offset int) ([]*models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + `
		FROM approval_requests
		ORDER BY requested_at DESC
		LIMIT $1 OFFSET $2`
	return r.queryApprovals(ctx, query, limit, offset)
}

// UpdateStatus atomically applies change iff the current status matches
// expected, appending to the history in the same transaction.
func (r *ApprovalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected models.ApprovalStatus, change repositories.ApprovalChange) (*models.ApprovalRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current models.ApprovalStatus
	var attempts int
	err = tx.QueryRowContext(ctx,
		`SELECT status, execute_attempts FROM approval_requests WHERE id = $1 FOR UPDATE`, id).
		Scan(&current, &attempts)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock approval request: %w", err)
	}

	if current != expected {
		return nil, repositories.ErrStatusConflict
	}
	// The CAS check trusts the caller's expectation; the state graph does not
	if !current.CanTransitionTo(change.To) {
		return nil, repositories.ErrInvalidTransition
	}

	now := time.Now().UTC()
	if change.IncrementAttempts {
		attempts++
	}

	var decidedAt, executedAt *time.Time
	switch change.To {
	case models.StatusApproved, models.StatusAutoApproved, models.StatusRejected:
		decidedAt = &now
	case models.StatusExecuted:
		executedAt = &now
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE approval_requests
		SET status = $2,
		    approver = CASE WHEN $3 <> '' THEN $3 ELSE approver END,
		    reason = CASE WHEN $4 <> '' THEN $4 ELSE reason END,
		    execution_error = $5,
		    change_plan = COALESCE($6, change_plan),
		    execute_attempts = $7,
		    decided_at = COALESCE($8, decided_at),
		    executed_at = COALESCE($9, executed_at)
		WHERE id = $1
	`, id, change.To, change.Actor, change.Reason, nullString(change.ExecutionError),
		nullBytes(change.ChangePlan), attempts, decidedAt, executedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update approval request: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approval_history (approval_id, from_status, to_status, actor, reason, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, current, change.To, change.Actor, change.Reason, now)
	if err != nil {
		return nil, fmt.Errorf("failed to append approval history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("approval status updated",
		zap.String("id", id.String()),
		zap.String("from", string(current)),
		zap.String("to", string(change.To)))

	return r.GetByID(ctx, id)
}

func (r *ApprovalRepository) queryApprovals(ctx context.Context, query string, args ...interface{}) ([]*models.ApprovalRequest, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval requests: %w", err)
	}
	defer rows.Close()

	requests := make([]*models.ApprovalRequest, 0)
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	for _, req := range requests {
		history, err := r.history(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		req.History = history
	}
	return requests, nil
}

func (r *ApprovalRepository) history(ctx context.Context, id uuid.UUID) ([]models.StatusChange, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, `
		SELECT from_status, to_status, actor, reason, changed_at
		FROM approval_history
		WHERE approval_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval history: %w", err)
	}
	defer rows.Close()

	history := make([]models.StatusChange, 0)
	for rows.Next() {
		var change models.StatusChange
		var actor, reason sql.NullString
		if err := rows.Scan(&change.From, &change.To, &actor, &reason, &change.At); err != nil {
			return nil, fmt.Errorf("failed to scan approval history: %w", err)
		}
		change.Actor = actor.String
		change.Reason = reason.String
		history = append(history, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return history, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApproval(row rowScanner) (*models.ApprovalRequest, error) {
	req := &models.ApprovalRequest{}
	var resources, violations []byte
	var riskLevel, requestor, approver, reason, execError sql.NullString
	var changePlan []byte

	err := row.Scan(
		&req.ID,
		&req.Action.Action,
		&resources,
		&req.Action.EstimatedImpact,
		&riskLevel,
		&requestor,
		&req.Action.DryRun,
		&req.Decision.Allow,
		&violations,
		&req.Status,
		&approver,
		&reason,
		&req.ExecuteAttempts,
		&execError,
		&changePlan,
		&req.RequestedAt,
		&req.DecidedAt,
		&req.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(resources, &req.Action.Resources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resources: %w", err)
	}
	if err := json.Unmarshal(violations, &req.Decision.Violations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal violations: %w", err)
	}

	req.Action.RiskLevel = riskLevel.String
	req.Action.Requestor = requestor.String
	req.Approver = approver.String
	req.Reason = reason.String
	req.ExecutionError = execError.String
	req.ChangePlan = changePlan
	return req, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
