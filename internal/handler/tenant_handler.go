package handler

import (
	"errors"
	"net/http"
	"strings"

	"tenant-service/internal/authz"
	"tenant-service/internal/membership"
	"tenant-service/internal/middleware"
	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
	"tenant-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TenantHandler serves the caller's tenant context and company creation
type TenantHandler struct {
	resolver   *tenant.Resolver
	authorizer *authz.Authorizer
	engine     *membership.Engine
}

func NewTenantHandler(resolver *tenant.Resolver, authorizer *authz.Authorizer, engine *membership.Engine) *TenantHandler {
	return &TenantHandler{resolver: resolver, authorizer: authorizer, engine: engine}
}

// Current returns the company the caller is working in and their role there
func (h *TenantHandler) Current(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	companyID, err := h.resolver.Resolve(c.Request().Context(), userID)
	if errors.Is(err, tenant.ErrNotResolved) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no company selected"})
	}
	if err != nil {
		return fail(c, log, "Failed to resolve tenant", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"company_id": companyID,
		"role":       h.authorizer.RoleIn(c.Request().Context(), userID, companyID),
	})
}

// CreateCompany registers a company owned by the caller and switches to it
func (h *TenantHandler) CreateCompany(c echo.Context) error {
	log := logger.FromEcho(c)
	claims, ok := middleware.Claims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		LegalName string `json:"legal_name"`
		TaxOffice string `json:"tax_office"`
		TaxNo     string `json:"tax_no"`
		Code      string `json:"code"`
		Website   string `json:"website"`
		Email     string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse company request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	req.LegalName = strings.TrimSpace(req.LegalName)
	req.TaxNo = strings.TrimSpace(req.TaxNo)
	if req.LegalName == "" || req.TaxNo == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "legal_name and tax_no are required"})
	}

	company := &model.Company{
		LegalName: req.LegalName,
		TaxOffice: req.TaxOffice,
		TaxNo:     req.TaxNo,
		Code:      &req.Code,
		Website:   req.Website,
		Email:     req.Email,
	}
	owner, err := h.engine.CreateCompany(c.Request().Context(), company, claims.UserID, claims.Email)
	if err != nil {
		return fail(c, log, "Failed to create company", err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"company":    company,
		"membership": owner,
	})
}

// Members lists the accounts of the caller's company; ?admins=true keeps owners and admins only
func (h *TenantHandler) Members(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	ctx := c.Request().Context()
	companyID, err := h.resolver.Resolve(ctx, userID)
	if errors.Is(err, tenant.ErrNotResolved) {
		return fail(c, log, "Members without tenant context", tenant.ErrMissingTenantContext)
	}
	if err != nil {
		return fail(c, log, "Failed to resolve tenant", err)
	}

	accounts, err := h.engine.MemberAccountIDs(ctx, companyID, c.QueryParam("admins") == "true")
	if err != nil {
		return fail(c, log, "Failed to list members", err)
	}
	resp := echo.Map{"company_id": companyID, "account_ids": accounts}
	if owner, err := h.engine.OwnerAccountID(ctx, companyID); err == nil {
		resp["owner_account_id"] = owner
	} else if !errors.Is(err, membership.ErrMembershipNotFound) {
		return fail(c, log, "Failed to find owner", err)
	}
	return c.JSON(http.StatusOK, resp)
}
