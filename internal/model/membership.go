package model

import (
	"github.com/google/uuid"
)

// Role is a member's permission level inside a company
type Role string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Rank orders roles; an unknown role ranks below member
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r grants everything min grants
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// ParseRole maps the wire representation to a Role
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Membership links an account to a company with a role.
// At most one of an account's active memberships is selected, and that
// selection is the account's tenant context.
type Membership struct {
	AuditedRecord
	AccountID  uuid.UUID `json:"account_id" gorm:"type:uuid;not null;uniqueIndex:idx_membership_account_company"`
	CompanyID  uuid.UUID `json:"company_id" gorm:"type:uuid;not null;uniqueIndex:idx_membership_account_company;index"`
	Role       Role      `json:"role" gorm:"type:varchar(20);not null"`
	IsSelected bool      `json:"is_selected" gorm:"not null"`
}

// Eligible reports whether the membership may be the account's selected one
func (m *Membership) Eligible() bool {
	return m.IsActive && !m.IsDeleted
}

// Deletable reports whether the membership may be removed by an administrator.
// Ownership has to be transferred first.
func (m *Membership) Deletable() bool {
	return m.Role != RoleOwner
}
