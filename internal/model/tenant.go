package model

import (
	"github.com/google/uuid"
)

// TenantOwned is implemented by every record that belongs to exactly one company
type TenantOwned interface {
	GetTenantCompanyID() uuid.UUID
	SetTenantCompanyID(uuid.UUID)
	Audit() *AuditedRecord
}

// TenantRecord is the base of tenant-owned entities. TenantCompanyID is set
// once on create from the caller's tenant context and never changes.
type TenantRecord struct {
	AuditedRecord
	TenantCompanyID uuid.UUID `json:"tenant_company_id" gorm:"type:uuid;not null;index"`
}

func (r *TenantRecord) GetTenantCompanyID() uuid.UUID { return r.TenantCompanyID }

func (r *TenantRecord) SetTenantCompanyID(id uuid.UUID) { r.TenantCompanyID = id }

func (r *TenantRecord) Audit() *AuditedRecord { return &r.AuditedRecord }
