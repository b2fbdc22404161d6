package handler

import (
	"net/http"
	"strings"
	"time"

	"tenant-service/internal/middleware"
	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
	"tenant-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// ExpenseHandler serves the tenant-scoped expense ledger
type ExpenseHandler struct {
	types    *tenant.Repository[model.ExpenseType, *model.ExpenseType]
	expenses *tenant.Repository[model.Expense, *model.Expense]
}

func NewExpenseHandler(
	types *tenant.Repository[model.ExpenseType, *model.ExpenseType],
	expenses *tenant.Repository[model.Expense, *model.Expense],
) *ExpenseHandler {
	return &ExpenseHandler{types: types, expenses: expenses}
}

// ListTypes returns the expense types of the caller's company
func (h *ExpenseHandler) ListTypes(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	types, err := h.types.List(c.Request().Context(), tenant.ForUser(userID), tenant.Query{
		OrderBy: []tenant.Order{{Column: "name"}},
	})
	if err != nil {
		return fail(c, log, "Failed to list expense types", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expense_types": types})
}

// CreateType adds an expense type; posting an existing name returns it unchanged
func (h *ExpenseHandler) CreateType(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	et, created, err := h.types.GetOrCreate(c.Request().Context(), tenant.ForUser(userID),
		map[string]interface{}{"name": req.Name},
		&model.ExpenseType{Name: req.Name})
	if err != nil {
		return fail(c, log, "Failed to create expense type", err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{"expense_type": et})
}

// expenseFilter reads the optional expense_type_id query parameter
func expenseFilter(c echo.Context) (tenant.Query, bool) {
	q := tenant.Query{}
	if raw := c.QueryParam("expense_type_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return q, false
		}
		q.Where = map[string]interface{}{"expense_type_id": id}
	}
	return q, true
}

// ListExpenses returns the caller's company expenses, newest first
func (h *ExpenseHandler) ListExpenses(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	query, valid := expenseFilter(c)
	if !valid {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid expense_type_id"})
	}
	query.OrderBy = []tenant.Order{{Column: "date", Desc: true}, {Column: "created_at", Desc: true}}

	expenses, err := h.expenses.List(c.Request().Context(), tenant.ForUser(userID), query)
	if err != nil {
		return fail(c, log, "Failed to list expenses", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expenses": expenses})
}

// CreateExpense records an expense against one of the company's expense types
func (h *ExpenseHandler) CreateExpense(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		ExpenseTypeID uuid.UUID `json:"expense_type_id"`
		Date          string    `json:"date"`
		Amount        string    `json:"amount"`
		Explanation   string    `json:"explanation"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be a positive number"})
	}

	ctx := c.Request().Context()
	scope := tenant.ForUser(userID)
	if _, err := h.types.Find(ctx, scope, req.ExpenseTypeID); err != nil {
		return fail(c, log, "Unknown expense type", err)
	}

	expense := &model.Expense{
		ExpenseTypeID: req.ExpenseTypeID,
		Date:          date,
		Amount:        amount.Round(2),
		Explanation:   req.Explanation,
	}
	if err := h.expenses.Create(ctx, scope, expense); err != nil {
		return fail(c, log, "Failed to create expense", err)
	}

	log.Info("Expense created",
		zap.String("expense_id", expense.ID.String()),
		zap.String("tenant_company_id", expense.TenantCompanyID.String()))
	return c.JSON(http.StatusCreated, echo.Map{"expense": expense})
}

// Summary totals the caller's company expenses
func (h *ExpenseHandler) Summary(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	query, valid := expenseFilter(c)
	if !valid {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid expense_type_id"})
	}

	ctx := c.Request().Context()
	scope := tenant.ForUser(userID)
	count, err := h.expenses.Count(ctx, scope, query)
	if err != nil {
		return fail(c, log, "Failed to count expenses", err)
	}
	total, err := h.expenses.Sum(ctx, scope, "amount", query)
	if err != nil {
		return fail(c, log, "Failed to sum expenses", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"count": count,
		"total": total.StringFixed(2),
	})
}

// DeleteExpense soft-deletes an expense of the caller's company
func (h *ExpenseHandler) DeleteExpense(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": tenant.ErrObjectNotFoundForTenant.Error()})
	}
	if err := h.expenses.Remove(c.Request().Context(), tenant.ForUser(userID), id); err != nil {
		return fail(c, log, "Failed to delete expense", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "expense deleted"})
}
