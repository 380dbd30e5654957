package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/cloudgov/costguard/config"
	"github.com/cloudgov/costguard/internal/policy"
	"github.com/cloudgov/costguard/internal/policy/policyfile"
	"github.com/cloudgov/costguard/middleware"
	"github.com/cloudgov/costguard/repositories"
	"github.com/cloudgov/costguard/repositories/memory"
	"github.com/cloudgov/costguard/repositories/postgres"
	"github.com/cloudgov/costguard/services/approval"
	"github.com/cloudgov/costguard/services/audit"
	"github.com/cloudgov/costguard/services/decision"
	"github.com/cloudgov/costguard/services/spend"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Policy configuration
	Policies *policyfile.File

	// Storage; DB and RepoFactory are nil on the in-memory backend
	DB          *postgres.DB
	RepoFactory *postgres.RepositoryFactory
	Approvals   repositories.ApprovalRepository
	AuditLogs   repositories.AuditRepository
	Spend       repositories.SpendRepository

	// Services
	AuditService    *audit.AuditService
	ApprovalService *approval.Service
	DecisionService *decision.Service
	SpendService    *spend.Service

	// Auth; nil when auth is disabled
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
// The executor may be nil, in which case only dry-run requests execute.
func NewDependencies(ctx context.Context, cfg *config.Config, executor approval.Executor, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initPolicies(cfg); err != nil {
		return nil, fmt.Errorf("failed to load policy configuration: %w", err)
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	deps.initServices(cfg, executor)
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("storage", cfg.Storage),
		zap.String("strictness", string(deps.Policies.Strictness)))
	return deps, nil
}

// initPolicies loads the policy file, or the built-in defaults when no file
// is configured. A file that fails to load or validate is fatal.
func (d *Dependencies) initPolicies(cfg *config.Config) error {
	policies := policyfile.Default()
	if cfg.Policy.FilePath != "" {
		loaded, err := policyfile.Load(cfg.Policy.FilePath)
		if err != nil {
			return err
		}
		policies = loaded
		d.Logger.Info("policy file loaded", zap.String("path", cfg.Policy.FilePath))
	}

	if cfg.Policy.Strictness != "" {
		policies.Strictness = policy.Strictness(cfg.Policy.Strictness)
	}

	d.Policies = policies
	return nil
}

// initStorage initializes the selected storage backend
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage == config.StorageMemory {
		d.Approvals = memory.NewApprovalStore()
		d.AuditLogs = memory.NewAuditStore()
		d.Spend = memory.NewSpendStore()
		d.Logger.Info("using in-memory storage")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.DB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	repos := factory.NewRepositories()
	d.Approvals = repos.Approvals
	d.AuditLogs = repos.AuditLogs
	d.Spend = repos.Spend

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initServices wires the service layer on top of the repositories
func (d *Dependencies) initServices(cfg *config.Config, executor approval.Executor) {
	d.AuditService = audit.NewAuditService(d.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})

	d.ApprovalService = approval.NewService(
		d.Approvals,
		d.AuditService,
		executor,
		approval.AutoApprovalRules{
			AutoApproveActions:   d.Policies.Approval.AutoApproveActions,
			ManualOnlyActions:    d.Policies.Approval.ManualOnlyActions,
			MaxAutoApproveImpact: d.Policies.Approval.MaxAutoApproveImpact,
		},
		approval.Config{
			MaxExecuteAttempts: cfg.Approval.MaxExecuteAttempts,
			ExecuteTimeout:     cfg.Approval.ExecuteTimeout,
		},
		d.Logger,
	)

	d.DecisionService = decision.NewService(d.Policies, d.ApprovalService, d.AuditService, d.Logger)
	d.SpendService = spend.NewService(d.Spend, d.Logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if !cfg.Auth.Enabled {
		d.Logger.Warn("auth disabled, approval endpoints accept the X-Actor header")
		return
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer, d.Logger)
	d.Logger.Info("auth middleware initialized")
}

// SQLDB returns the raw sql.DB handle, or nil on the in-memory backend
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

// Start starts background workers
func (d *Dependencies) Start() error {
	return d.AuditService.Start()
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.AuditService != nil {
		if err := d.AuditService.Stop(d.Config.Audit.StopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
