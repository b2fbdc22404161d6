// Package authz answers what a user may do in their current tenant.
// Every failure path denies.
package authz

import (
	"context"
	"errors"

	"tenant-service/internal/model"
	"tenant-service/internal/tenant"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Authorizer reads membership roles
type Authorizer struct {
	db       *gorm.DB
	resolver *tenant.Resolver
	log      *zap.Logger
}

func NewAuthorizer(db *gorm.DB, resolver *tenant.Resolver, log *zap.Logger) *Authorizer {
	return &Authorizer{db: db, resolver: resolver, log: log.Named("authz")}
}

// EffectiveRole returns the role of the selected membership of userID in the
// resolved company, or RoleNone. A cache entry naming an unselected membership denies.
func (a *Authorizer) EffectiveRole(ctx context.Context, userID uuid.UUID) model.Role {
	companyID, err := a.resolver.Resolve(ctx, userID)
	if err != nil {
		if !errors.Is(err, tenant.ErrNotResolved) {
			a.log.Warn("Denying: tenant resolution failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
		return model.RoleNone
	}
	return a.role(ctx, userID, companyID, true)
}

// RoleIn returns the role of userID in companyID whether or not it is selected, or RoleNone
func (a *Authorizer) RoleIn(ctx context.Context, userID, companyID uuid.UUID) model.Role {
	return a.role(ctx, userID, companyID, false)
}

func (a *Authorizer) role(ctx context.Context, userID, companyID uuid.UUID, selectedOnly bool) model.Role {
	var row struct {
		Role model.Role
	}
	q := a.db.WithContext(ctx).
		Table("memberships").
		Select("memberships.role").
		Joins("JOIN accounts ON accounts.id = memberships.account_id").
		Where("accounts.user_id = ? AND accounts.is_deleted = ?", userID, false).
		Where("memberships.company_id = ? AND memberships.is_active = ? AND memberships.is_deleted = ?", companyID, true, false)
	if selectedOnly {
		q = q.Where("memberships.is_selected = ?", true)
	}
	result := q.Limit(1).Scan(&row)
	if result.Error != nil {
		a.log.Warn("Denying: role lookup failed",
			zap.String("user_id", userID.String()),
			zap.String("company_id", companyID.String()),
			zap.Error(result.Error))
		return model.RoleNone
	}
	if result.RowsAffected == 0 || !row.Role.Valid() {
		return model.RoleNone
	}
	return row.Role
}

// HasRole reports whether userID holds at least min in their selected company
func (a *Authorizer) HasRole(ctx context.Context, userID uuid.UUID, min model.Role) bool {
	return a.EffectiveRole(ctx, userID).AtLeast(min)
}
