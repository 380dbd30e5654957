// Package repositories defines the persistence interfaces consumed by the
// services layer. Implementations live in the postgres and memory
// subpackages; the approval store is the single stateful component and must
// serialize transitions per request id.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cloudgov/costguard/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStatusConflict is returned by UpdateStatus when the request's
	// current status does not match the caller's expectation. The store is
	// left untouched.
	ErrStatusConflict = errors.New("approval status conflict")

	// ErrInvalidTransition is returned by UpdateStatus when the state graph
	// does not permit moving from the current status to the requested one,
	// even though the current status matched the caller's expectation. The
	// store is left untouched.
	ErrInvalidTransition = errors.New("approval status transition not permitted")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// ApprovalChange describes one forward transition of an approval request.
// The store records the resulting status atomically with an appended history
// entry; readers never observe a half-applied change.
type ApprovalChange struct {
	To                models.ApprovalStatus
	Actor             string
	Reason            string
	ExecutionError    string
	ChangePlan        json.RawMessage
	IncrementAttempts bool
}

// ApprovalRepository handles approval request persistence
type ApprovalRepository interface {
	// Create stores a new approval request
	Create(ctx context.Context, req *models.ApprovalRequest) error

	// GetByID retrieves an approval request with its full history
	GetByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error)

	// ListPending retrieves all pending approval requests, oldest first
	ListPending(ctx context.Context) ([]*models.ApprovalRequest, error)

	// List retrieves approval requests with pagination, newest first
	List(ctx context.Context, limit, offset int) ([]*models.ApprovalRequest, error)

	// UpdateStatus atomically applies change iff the request's current
	// status equals expected and the state graph permits expected -> To,
	// appending to the history. Returns ErrStatusConflict or
	// ErrInvalidTransition (and no mutation) otherwise. Implementations
	// serialize calls per request id while unrelated ids proceed
	// concurrently.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected models.ApprovalStatus, change ApprovalChange) (*models.ApprovalRequest, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// ListByApprovalID retrieves the audit trail of one approval request
	ListByApprovalID(ctx context.Context, approvalID uuid.UUID) ([]*models.AuditLog, error)

	// List retrieves audit logs with pagination, newest first
	List(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}

// SpendPeriod represents the time period for spend tracking
type SpendPeriod string

const (
	PeriodDaily   SpendPeriod = "daily"
	PeriodMonthly SpendPeriod = "monthly"
)

// SpendRecord represents one cost observation to record
type SpendRecord struct {
	ScopeKey   string
	Cost       float64
	Currency   string
	Service    string
	ResourceID string
}

// SpendSummary represents spending totals per period
type SpendSummary struct {
	DailySpend   float64 `json:"daily_spend"`
	MonthlySpend float64 `json:"monthly_spend"`
}

// SpenderInfo represents information about a spending scope
type SpenderInfo struct {
	ScopeKey  string  `json:"scope_key"`
	TotalCost float64 `json:"total_cost"`
	Currency  string  `json:"currency"`
}

// SpendRepository tracks observed spend per scope and period; it feeds the
// budget facts for the convenience check path and reporting.
type SpendRepository interface {
	// RecordCost upserts the cost into the daily and monthly periods and
	// records the individual transaction
	RecordCost(ctx context.Context, rec SpendRecord) error

	// GetPeriodSpend returns the total spend for the period containing now
	GetPeriodSpend(ctx context.Context, scopeKey string, period SpendPeriod, now time.Time) (float64, error)

	// GetSpendSummary returns daily and monthly totals for a scope
	GetSpendSummary(ctx context.Context, scopeKey string) (*SpendSummary, error)

	// TopSpenders returns the highest-spending scopes for the period
	TopSpenders(ctx context.Context, period SpendPeriod, limit int) ([]SpenderInfo, error)

	// CleanupOldData removes spend data older than the retention window
	CleanupOldData(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Repositories aggregates all repository instances
type Repositories struct {
	Approvals ApprovalRepository
	AuditLogs AuditRepository
	Spend     SpendRepository
	TxManager TransactionManager
}
