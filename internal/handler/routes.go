package handler

import (
	"tenant-service/internal/middleware"
	"tenant-service/internal/model"

	"github.com/labstack/echo/v4"
)

// Handlers groups the HTTP handlers of the service
type Handlers struct {
	Tenant     *TenantHandler
	Membership *MembershipHandler
	Expense    *ExpenseHandler
}

// RegisterRoutes mounts the API under /api behind auth. roles gates the admin routes.
func RegisterRoutes(e *echo.Echo, h Handlers, auth echo.MiddlewareFunc, roles middleware.RoleChecker) {
	adminOnly := middleware.RequireRole(roles, model.RoleAdmin)

	api := e.Group("/api")
	api.Use(auth)

	// Tenant context
	api.GET("/me/tenant", h.Tenant.Current)
	api.GET("/me/tenant/members", h.Tenant.Members, adminOnly)
	api.POST("/companies", h.Tenant.CreateCompany)

	// Memberships - listing and switching need no tenant context
	memberships := api.Group("/memberships")
	memberships.GET("", h.Membership.List)
	memberships.POST("/select", h.Membership.Select)
	memberships.POST("", h.Membership.Create, adminOnly)
	memberships.PATCH("/:id", h.Membership.Update, adminOnly)
	memberships.DELETE("/:id", h.Membership.Delete, adminOnly)

	// Tenant-scoped ledger
	api.GET("/expense-types", h.Expense.ListTypes)
	api.POST("/expense-types", h.Expense.CreateType)

	expenses := api.Group("/expenses")
	expenses.GET("", h.Expense.ListExpenses)
	expenses.POST("", h.Expense.CreateExpense)
	expenses.GET("/summary", h.Expense.Summary)
	expenses.DELETE("/:id", h.Expense.DeleteExpense, adminOnly)
}
