package membership

import (
	"context"
	"errors"
	"fmt"

	"tenant-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// View is a membership together with the company it grants access to
type View struct {
	ID          uuid.UUID  `json:"id"`
	CompanyID   uuid.UUID  `json:"company_id"`
	CompanyName string     `json:"company_name"`
	Role        model.Role `json:"role"`
	IsSelected  bool       `json:"is_selected"`
}

// ListForUser returns the user's live memberships, the selected one first
func (e *Engine) ListForUser(ctx context.Context, userID uuid.UUID) ([]View, error) {
	views := []View{}
	err := e.db.WithContext(ctx).
		Table("memberships").
		Select("memberships.id, memberships.company_id, companies.legal_name AS company_name, memberships.role, memberships.is_selected").
		Joins("JOIN accounts ON accounts.id = memberships.account_id").
		Joins("JOIN companies ON companies.id = memberships.company_id").
		Where("accounts.user_id = ? AND accounts.is_deleted = ?", userID, false).
		Where("memberships.is_active = ? AND memberships.is_deleted = ?", true, false).
		Where("companies.is_deleted = ?", false).
		Order("memberships.is_selected DESC, companies.legal_name ASC").
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return views, nil
}

// MemberAccountIDs returns the accounts with a live membership in companyID,
// restricted to owners and admins when adminOnly is set
func (e *Engine) MemberAccountIDs(ctx context.Context, companyID uuid.UUID, adminOnly bool) ([]uuid.UUID, error) {
	q := e.db.WithContext(ctx).Model(&model.Membership{}).
		Where("company_id = ? AND is_active = ? AND is_deleted = ?", companyID, true, false)
	if adminOnly {
		q = q.Where("role IN ?", []string{string(model.RoleOwner), string(model.RoleAdmin)})
	}

	ids := []uuid.UUID{}
	if err := q.Order("created_at ASC").Pluck("account_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list member accounts: %w", err)
	}
	return ids, nil
}

// OwnerAccountID returns the account owning companyID
func (e *Engine) OwnerAccountID(ctx context.Context, companyID uuid.UUID) (uuid.UUID, error) {
	var m model.Membership
	err := e.db.WithContext(ctx).
		Take(&m, "company_id = ? AND role = ? AND is_active = ? AND is_deleted = ?", companyID, model.RoleOwner, true, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, ErrMembershipNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("find owner: %w", err)
	}
	return m.AccountID, nil
}
