package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Approval requests table
		CREATE TABLE IF NOT EXISTS approval_requests (
			id UUID PRIMARY KEY,
			action VARCHAR(100) NOT NULL,
			resources JSONB NOT NULL DEFAULT '[]',
			estimated_impact DECIMAL(12, 2) NOT NULL DEFAULT 0,
			risk_level VARCHAR(20),
			requestor VARCHAR(255),
			dry_run BOOLEAN NOT NULL DEFAULT false,
			decision_allow BOOLEAN NOT NULL,
			decision_violations JSONB NOT NULL DEFAULT '[]',
			status VARCHAR(50) NOT NULL,
			approver VARCHAR(255),
			reason TEXT,
			execute_attempts INTEGER NOT NULL DEFAULT 0,
			execution_error TEXT,
			change_plan JSONB,
			requested_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			decided_at TIMESTAMP,
			executed_at TIMESTAMP
		);

		-- Append-only approval status history
		CREATE TABLE IF NOT EXISTS approval_history (
			id BIGSERIAL PRIMARY KEY,
			approval_id UUID NOT NULL REFERENCES approval_requests(id) ON DELETE CASCADE,
			from_status VARCHAR(50) NOT NULL,
			to_status VARCHAR(50) NOT NULL,
			actor VARCHAR(255),
			reason TEXT,
			changed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Audit logs table
		CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			action VARCHAR(100) NOT NULL,
			approval_id UUID,
			gated_action VARCHAR(100),
			actor VARCHAR(255),
			outcome VARCHAR(50),
			details JSONB,
			request_id VARCHAR(255),
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Spend tracking tables
		CREATE TABLE IF NOT EXISTS spend_tracking (
			scope_key VARCHAR(255) NOT NULL,
			period_key VARCHAR(20) NOT NULL,
			total_cost DECIMAL(14, 2) NOT NULL DEFAULT 0,
			currency VARCHAR(10) NOT NULL DEFAULT 'USD',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (scope_key, period_key)
		);

		CREATE TABLE IF NOT EXISTS spend_transactions (
			id BIGSERIAL PRIMARY KEY,
			scope_key VARCHAR(255) NOT NULL,
			cost DECIMAL(14, 2) NOT NULL,
			currency VARCHAR(10) NOT NULL DEFAULT 'USD',
			service VARCHAR(100),
			resource_id VARCHAR(255),
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_approval_requests_status ON approval_requests(status);
		CREATE INDEX IF NOT EXISTS idx_approval_requests_requested_at ON approval_requests(requested_at);
		CREATE INDEX IF NOT EXISTS idx_approval_history_approval_id ON approval_history(approval_id);

		CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_approval_id ON audit_logs(approval_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_request_id ON audit_logs(request_id);

		CREATE INDEX IF NOT EXISTS idx_spend_transactions_scope ON spend_transactions(scope_key);
		CREATE INDEX IF NOT EXISTS idx_spend_transactions_timestamp ON spend_transactions(timestamp);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
