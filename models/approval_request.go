package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cloudgov/costguard/internal/policy"
)

// ApprovalStatus is the lifecycle state of an approval request. Transitions
// only move forward; see CanTransitionTo.
type ApprovalStatus string

const (
	StatusPending         ApprovalStatus = "pending"
	StatusAutoApproved    ApprovalStatus = "auto_approved"
	StatusApproved        ApprovalStatus = "approved"
	StatusRejected        ApprovalStatus = "rejected"
	StatusExecuted        ApprovalStatus = "executed"
	StatusExecutionFailed ApprovalStatus = "execution_failed"
)

// transitions is the forward-only state graph. execution_failed may re-enter
// approved through a bounded retry.
var transitions = map[ApprovalStatus][]ApprovalStatus{
	StatusPending:         {StatusAutoApproved, StatusApproved, StatusRejected},
	StatusAutoApproved:    {StatusExecuted, StatusExecutionFailed},
	StatusApproved:        {StatusExecuted, StatusExecutionFailed},
	StatusExecutionFailed: {StatusApproved},
}

// CanTransitionTo reports whether the state graph permits moving from s to
// target.
func (s ApprovalStatus) CanTransitionTo(target ApprovalStatus) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition can ever leave s.
func (s ApprovalStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// ActionDescriptor identifies the gated operation an approval request covers.
type ActionDescriptor struct {
	Action          string   `json:"action" db:"action" validate:"required"`
	Resources       []string `json:"resources,omitempty" db:"resources"`
	EstimatedImpact float64  `json:"estimated_impact" db:"estimated_impact" validate:"gte=0"`
	RiskLevel       string   `json:"risk_level,omitempty" db:"risk_level" validate:"omitempty,oneof=low medium high"`
	Requestor       string   `json:"requestor,omitempty" db:"requestor"`
	DryRun          bool     `json:"dry_run" db:"dry_run"`
}

// StatusChange is one append-only audit-trail entry of a request's history.
type StatusChange struct {
	From   ApprovalStatus `json:"from" db:"from_status"`
	To     ApprovalStatus `json:"to" db:"to_status"`
	Actor  string         `json:"actor,omitempty" db:"actor"`
	Reason string         `json:"reason,omitempty" db:"reason"`
	At     time.Time      `json:"at" db:"changed_at"`
}

// ApprovalRequest gates one action attempt. Created once per attempt; after a
// terminal status only the history remains appendable.
type ApprovalRequest struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Action          ActionDescriptor `json:"action" db:"-"`
	Decision        policy.Verdict  `json:"decision" db:"-"`
	Status          ApprovalStatus  `json:"status" db:"status"`
	Approver        string          `json:"approver,omitempty" db:"approver"`
	Reason          string          `json:"reason,omitempty" db:"reason"`
	ExecuteAttempts int             `json:"execute_attempts" db:"execute_attempts"`
	ExecutionError  string          `json:"execution_error,omitempty" db:"execution_error"`
	ChangePlan      json.RawMessage `json:"change_plan,omitempty" db:"change_plan"`
	RequestedAt     time.Time       `json:"requested_at" db:"requested_at"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty" db:"decided_at"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty" db:"executed_at"`
	History         []StatusChange  `json:"history"`
}

// NewApprovalRequest builds a pending request for the action, annotated with
// the verdict that gated it.
func NewApprovalRequest(action ActionDescriptor, decision policy.Verdict) *ApprovalRequest {
	now := time.Now().UTC()
	return &ApprovalRequest{
		ID:          uuid.New(),
		Action:      action,
		Decision:    decision,
		Status:      StatusPending,
		RequestedAt: now,
		History:     []StatusChange{},
	}
}

// Clone returns a deep copy so callers can never observe or mutate shared
// state held by a store.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	clone := *r
	clone.Action.Resources = append([]string(nil), r.Action.Resources...)
	clone.Decision.Violations = append([]string(nil), r.Decision.Violations...)
	clone.History = append([]StatusChange(nil), r.History...)
	clone.ChangePlan = append(json.RawMessage(nil), r.ChangePlan...)
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		clone.DecidedAt = &t
	}
	if r.ExecutedAt != nil {
		t := *r.ExecutedAt
		clone.ExecutedAt = &t
	}
	return &clone
}
