package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cloudgov/costguard/app"
	"github.com/cloudgov/costguard/handlers"
	"github.com/cloudgov/costguard/middleware"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.SQLDB(), deps.AuditService, deps.Logger)
	policyHandler := handlers.NewPolicyHandler(deps.DecisionService, deps.Logger)
	decisionHandler := handlers.NewDecisionHandler(deps.DecisionService, deps.Logger)
	approvalHandler := handlers.NewApprovalHandler(deps.ApprovalService, deps.AuditLogs, deps.Logger)
	spendHandler := handlers.NewSpendHandler(deps.SpendService, deps.DecisionService, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// requireAuth is a no-op when auth is disabled
	requireAuth := func(next http.Handler) http.Handler { return next }
	if deps.AuthMiddleware != nil {
		requireAuth = deps.AuthMiddleware.RequireAuth
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Policy evaluation endpoints
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", policyHandler.HandleGetPolicies)
			r.Post("/budget/check", policyHandler.HandleBudgetCheck)
			r.Post("/budget/forecast", policyHandler.HandleBudgetForecast)
			r.Post("/tags/validate", policyHandler.HandleTagsValidate)
			r.Post("/tags/audit", policyHandler.HandleTagsAudit)
		})

		// Decision pipeline
		r.Post("/decisions", decisionHandler.HandleDecide)

		// Approval workflow (state transitions require authentication)
		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", approvalHandler.HandleList)
			r.Get("/pending", approvalHandler.HandleListPending)
			r.Get("/{id}", approvalHandler.HandleGet)
			r.Get("/{id}/audit", approvalHandler.HandleTrail)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", approvalHandler.HandleCreate)
				r.Post("/{id}/approve", approvalHandler.HandleApprove)
				r.Post("/{id}/reject", approvalHandler.HandleReject)
				r.Post("/{id}/cancel", approvalHandler.HandleCancel)
				r.Post("/{id}/execute", approvalHandler.HandleExecute)
				r.Post("/{id}/retry", approvalHandler.HandleRetry)
			})
		})

		// Spend tracking
		r.Route("/spend", func(r chi.Router) {
			r.Post("/", spendHandler.HandleRecordCost)
			r.Get("/top", spendHandler.HandleTopSpenders)
			r.Get("/{scope}", spendHandler.HandleSummary)
			r.Post("/{scope}/check", spendHandler.HandleScopeBudgetCheck)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
