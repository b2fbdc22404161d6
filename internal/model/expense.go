package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseType is a per-company expense category; names are unique within a company.
// It declares its own tenant column so the name can share its unique index.
type ExpenseType struct {
	AuditedRecord
	TenantCompanyID uuid.UUID `json:"tenant_company_id" gorm:"type:uuid;not null;uniqueIndex:idx_expense_type_tenant_name"`
	Name            string    `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:idx_expense_type_tenant_name"`
}

func (e *ExpenseType) GetTenantCompanyID() uuid.UUID { return e.TenantCompanyID }

func (e *ExpenseType) SetTenantCompanyID(id uuid.UUID) { e.TenantCompanyID = id }

func (e *ExpenseType) Audit() *AuditedRecord { return &e.AuditedRecord }

// Expense is a single spending entry of a company
type Expense struct {
	TenantRecord
	ExpenseTypeID uuid.UUID       `json:"expense_type_id" gorm:"type:uuid;not null;index"`
	Date          time.Time       `json:"date" gorm:"not null;index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(9,2);not null"`
	Explanation   string          `json:"explanation" gorm:"type:text"`
	IsApproved    bool            `json:"is_approved" gorm:"not null"`
	ApprovedBy    *uuid.UUID      `json:"approved_by,omitempty" gorm:"type:uuid"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
	IsPaid        bool            `json:"is_paid" gorm:"not null"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}
