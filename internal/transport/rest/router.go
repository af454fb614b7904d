package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/expenseflow/expenseflow/internal/approval"
	"github.com/expenseflow/expenseflow/internal/auth"
	"github.com/expenseflow/expenseflow/internal/company"
	"github.com/expenseflow/expenseflow/internal/expense"
	"github.com/expenseflow/expenseflow/internal/transport/middleware"
	"github.com/expenseflow/expenseflow/internal/transport/swagger"
	"github.com/expenseflow/expenseflow/internal/user"
	"github.com/go-chi/chi"
)

type Handlers struct {
	Auth     *auth.Handler
	User     *user.Handler
	Company  *company.Handler
	Approval *approval.Handler
	Expense  *expense.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// OpenAPI spec and swagger UI live at the root, outside the API prefix
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/logout", h.Auth.Logout)
		})

		// Signup bootstraps a company plus its first admin, so no auth
		r.Post("/signup", h.User.Signup)

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Get("/users/me", h.User.GetCurrentUser)

			pr.Route("/users", func(ur chi.Router) {
				ur.Get("/", h.User.ListUsers)

				ur.Group(func(ar chi.Router) {
					ar.Use(middleware.RequireRole(user.RoleAdmin))
					ar.Post("/", h.User.CreateUser)
					ar.Patch("/{id}/role", h.User.UpdateRole)
					ar.Patch("/{id}/manager", h.User.UpdateManager)
					ar.Delete("/{id}", h.User.DeleteUser)
				})
			})

			pr.Route("/company", func(cr chi.Router) {
				cr.Get("/", h.Company.GetCompany)

				cr.Group(func(ar chi.Router) {
					ar.Use(middleware.RequireRole(user.RoleAdmin))
					ar.Patch("/currency", h.Company.UpdateCurrency)
				})
			})

			pr.Route("/approval-rule", func(rr chi.Router) {
				rr.Get("/", h.Approval.GetRule)

				rr.Group(func(ar chi.Router) {
					ar.Use(middleware.RequireRole(user.RoleAdmin))
					ar.Put("/", h.Approval.UpdateRule)
				})
			})

			pr.Route("/expenses", func(er chi.Router) {
				er.Post("/", h.Expense.CreateExpense)
				er.Get("/", h.Expense.ListMyExpenses)

				// per-expense authorization happens in the approval engine:
				// a rule step may route to a named user of any role
				er.Get("/pending-approvals", h.Expense.PendingApprovals)
				er.Patch("/{id}/approve", h.Expense.ApproveExpense)
				er.Patch("/{id}/reject", h.Expense.RejectExpense)

				er.Get("/{id}", h.Expense.GetExpense)

				er.Group(func(mr chi.Router) {
					mr.Use(middleware.RequireRole(user.RoleManager, user.RoleAdmin))
					mr.Get("/all", h.Expense.ListCompanyExpenses)
					mr.Get("/team", h.Expense.TeamExpenses)
				})

				er.Group(func(ar chi.Router) {
					ar.Use(middleware.RequireRole(user.RoleAdmin))
					ar.Patch("/{id}/override", h.Expense.OverrideExpense)
				})
			})
		})
	})
}
