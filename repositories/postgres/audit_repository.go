package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/repositories"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
// This method supports async insert patterns by being non-blocking
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, action, approval_id, gated_action, actor, outcome, details, request_id, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.Action,
		log.ApprovalID,
		nullString(log.GatedAction),
		nullString(log.Actor),
		nullString(log.Outcome),
		nullBytes(log.Details),
		nullString(log.RequestID),
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted",
		zap.String("id", log.ID.String()),
		zap.String("action", string(log.Action)))
	return nil
}

const auditColumns = `id, action, approval_id, gated_action, actor, outcome, details, request_id, timestamp`

// GetByID retrieves an audit log by ID
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	log, err := scanAuditLog(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}
	return log, nil
}

// ListByApprovalID retrieves the audit trail of one approval request
func (r *AuditRepository) ListByApprovalID(ctx context.Context, approvalID uuid.UUID) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE approval_id = $1
		ORDER BY timestamp ASC`
	return r.queryLogs(ctx, query, approvalID)
}

// List retrieves audit logs with pagination, newest first
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_logs
		ORDER BY timestamp DESC
		LIMIT $1 OFFSET $2`
	return r.queryLogs(ctx, query, limit, offset)
}

func (r *AuditRepository) queryLogs(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return logs, nil
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var gatedAction, actor, outcome, requestID sql.NullString
	var details []byte

	err := row.Scan(
		&log.ID,
		&log.Action,
		&log.ApprovalID,
		&gatedAction,
		&actor,
		&outcome,
		&details,
		&requestID,
		&log.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	log.GatedAction = gatedAction.String
	log.Actor = actor.String
	log.Outcome = outcome.String
	log.RequestID = requestID.String
	log.Details = details
	return log, nil
}
