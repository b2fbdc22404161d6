package model

import (
	"strings"

	"gorm.io/gorm"
)

// Company is a tenant. Every tenant-owned record points at exactly one company.
type Company struct {
	AuditedRecord
	LegalName string  `json:"legal_name" gorm:"type:varchar(150);not null"`
	TaxOffice string  `json:"tax_office" gorm:"type:varchar(100)"`
	TaxNo     string  `json:"tax_no" gorm:"type:varchar(20);uniqueIndex;not null"`
	Code      *string `json:"code,omitempty" gorm:"type:varchar(20);uniqueIndex"`
	Website   string  `json:"website" gorm:"type:varchar(200)"`
	Email     string  `json:"email" gorm:"type:varchar(100)"`
}

// BeforeSave stores a blank code as NULL so companies without one never collide
func (c *Company) BeforeSave(tx *gorm.DB) error {
	if c.Code != nil {
		trimmed := strings.TrimSpace(*c.Code)
		if trimmed == "" {
			c.Code = nil
		} else {
			c.Code = &trimmed
		}
	}
	return c.AuditedRecord.BeforeSave(tx)
}
