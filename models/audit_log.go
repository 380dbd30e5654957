package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of event being audited
type AuditAction string

const (
	AuditActionDecisionEvaluated AuditAction = "decision_evaluated"
	AuditActionApprovalCreated   AuditAction = "approval_created"
	AuditActionAutoApproved      AuditAction = "approval_auto_approved"
	AuditActionApproved          AuditAction = "approval_approved"
	AuditActionRejected          AuditAction = "approval_rejected"
	AuditActionCancelled         AuditAction = "approval_cancelled"
	AuditActionExecuted          AuditAction = "approval_executed"
	AuditActionExecutionFailed   AuditAction = "approval_execution_failed"
	AuditActionRetryRequested    AuditAction = "approval_retry_requested"
)

// AuditLog represents one audit trail entry: a decision outcome or an
// approval state transition.
type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Action     AuditAction     `json:"action" db:"action"`
	ApprovalID *uuid.UUID      `json:"approval_id,omitempty" db:"approval_id"`
	GatedAction string         `json:"gated_action,omitempty" db:"gated_action"`
	Actor      string          `json:"actor,omitempty" db:"actor"`
	Outcome    string          `json:"outcome,omitempty" db:"outcome"`
	Details    json.RawMessage `json:"details,omitempty" db:"details"` // JSONB for flexible metadata
	RequestID  string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// WithApproval sets the approval request ID
func (a *AuditLog) WithApproval(id uuid.UUID) *AuditLog {
	a.ApprovalID = &id
	return a
}

// WithActor sets the acting identity
func (a *AuditLog) WithActor(actor string) *AuditLog {
	a.Actor = actor
	return a
}

// WithOutcome sets the outcome label
func (a *AuditLog) WithOutcome(outcome string) *AuditLog {
	a.Outcome = outcome
	return a
}

// WithDetails marshals v into the details payload. Marshal failures leave
// details empty rather than blocking the audit path.
func (a *AuditLog) WithDetails(v interface{}) *AuditLog {
	if raw, err := json.Marshal(v); err == nil {
		a.Details = raw
	}
	return a
}

// WithRequestID sets the originating HTTP request ID
func (a *AuditLog) WithRequestID(requestID string) *AuditLog {
	a.RequestID = requestID
	return a
}
