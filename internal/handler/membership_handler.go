package handler

import (
	"errors"
	"net/http"

	"tenant-service/internal/authz"
	"tenant-service/internal/membership"
	"tenant-service/internal/middleware"
	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
	"tenant-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// MembershipHandler lists, switches and administers company memberships
type MembershipHandler struct {
	engine     *membership.Engine
	resolver   *tenant.Resolver
	authorizer *authz.Authorizer
}

func NewMembershipHandler(engine *membership.Engine, resolver *tenant.Resolver, authorizer *authz.Authorizer) *MembershipHandler {
	return &MembershipHandler{engine: engine, resolver: resolver, authorizer: authorizer}
}

// List returns the caller's memberships
func (h *MembershipHandler) List(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	views, err := h.engine.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return fail(c, log, "Failed to list memberships", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"memberships": views})
}

// Select switches the caller to another company they belong to
func (h *MembershipHandler) Select(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		CompanyID uuid.UUID `json:"company_id"`
	}
	if err := c.Bind(&req); err != nil || req.CompanyID == uuid.Nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "company_id is required"})
	}

	m, err := h.engine.SelectCompany(c.Request().Context(), userID, req.CompanyID, userID)
	if err != nil {
		return fail(c, log, "Failed to select company", err)
	}

	log.Info("Company selected",
		zap.String("user_id", userID.String()),
		zap.String("company_id", req.CompanyID.String()))
	return c.JSON(http.StatusOK, echo.Map{"membership": m})
}

// currentCompany resolves the caller's tenant for administrative routes
func (h *MembershipHandler) currentCompany(c echo.Context, userID uuid.UUID) (uuid.UUID, error) {
	companyID, err := h.resolver.Resolve(c.Request().Context(), userID)
	if errors.Is(err, tenant.ErrNotResolved) {
		return uuid.Nil, tenant.ErrMissingTenantContext
	}
	return companyID, err
}

// Create adds a user to the caller's company. Nobody can grant a role above their own.
func (h *MembershipHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		UserID uuid.UUID `json:"user_id"`
		Email  string    `json:"email"`
		Role   string    `json:"role"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == uuid.Nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}
	role, valid := model.ParseRole(req.Role)
	if !valid {
		return fail(c, log, "Invalid membership role", membership.ErrInvalidRole)
	}

	ctx := c.Request().Context()
	companyID, err := h.currentCompany(c, actor)
	if err != nil {
		return fail(c, log, "Failed to resolve tenant", err)
	}
	if !h.authorizer.RoleIn(ctx, actor, companyID).AtLeast(role) {
		log.Warn("Role grant above own role rejected",
			zap.String("user_id", actor.String()),
			zap.String("role", string(role)))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	account, err := h.engine.EnsureAccount(ctx, req.UserID, req.Email)
	if err != nil {
		return fail(c, log, "Failed to load account", err)
	}

	m := &model.Membership{AccountID: account.ID, CompanyID: companyID, Role: role}
	m.IsActive = true
	if err := h.engine.Upsert(ctx, m, actor); err != nil {
		return fail(c, log, "Failed to add member", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"membership": m})
}

// companyMembership loads membership :id, hiding memberships of other companies
func (h *MembershipHandler) companyMembership(c echo.Context, actor uuid.UUID) (*model.Membership, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, membership.ErrMembershipNotFound
	}
	companyID, err := h.currentCompany(c, actor)
	if err != nil {
		return nil, err
	}
	m, err := h.engine.Get(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if m.CompanyID != companyID {
		return nil, membership.ErrMembershipNotFound
	}
	return m, nil
}

// Update changes the role or active flag of a membership in the caller's company
func (h *MembershipHandler) Update(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Role     *string `json:"role"`
		IsActive *bool   `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	m, err := h.companyMembership(c, actor)
	if err != nil {
		return fail(c, log, "Failed to load membership", err)
	}

	ctx := c.Request().Context()
	callerRole := h.authorizer.RoleIn(ctx, actor, m.CompanyID)
	if !callerRole.AtLeast(m.Role) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}
	if req.Role != nil {
		role, valid := model.ParseRole(*req.Role)
		if !valid {
			return fail(c, log, "Invalid membership role", membership.ErrInvalidRole)
		}
		if !callerRole.AtLeast(role) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
		}
		m.Role = role
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}

	if err := h.engine.Upsert(ctx, m, actor); err != nil {
		return fail(c, log, "Failed to update membership", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"membership": m})
}

// Delete removes a membership from the caller's company. Owner memberships stay.
func (h *MembershipHandler) Delete(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	m, err := h.companyMembership(c, actor)
	if err != nil {
		return fail(c, log, "Failed to load membership", err)
	}
	if !m.Deletable() {
		return fail(c, log, "Owner membership removal rejected", membership.ErrNotDeletable)
	}

	promoted, err := h.engine.Remove(c.Request().Context(), m.ID, actor)
	if err != nil {
		return fail(c, log, "Failed to remove membership", err)
	}

	resp := echo.Map{"message": "membership removed"}
	if promoted != nil {
		resp["promoted_company_id"] = promoted.CompanyID
	}
	return c.JSON(http.StatusOK, resp)
}
