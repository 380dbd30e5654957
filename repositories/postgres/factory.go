package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/cloudgov/costguard/config"
	"github.com/cloudgov/costguard/repositories"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// InitSchema initializes the database schema
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	return f.db.InitSchema(ctx)
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Approvals: NewApprovalRepository(f.db, f.logger),
		AuditLogs: NewAuditRepository(f.db, f.logger),
		Spend:     NewSpendRepository(f.db, f.logger),
		TxManager: NewTransactionManager(f.db, f.logger),
	}
}

// DB returns the underlying database handle
func (f *RepositoryFactory) DB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
