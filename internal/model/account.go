package model

import (
	"time"

	"github.com/google/uuid"
)

// Account is the tenant-facing profile of a login identity
type Account struct {
	AuditedRecord
	UserID          uuid.UUID  `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	Email           string     `json:"email" gorm:"type:varchar(100)"`
	Phone           string     `json:"phone" gorm:"type:varchar(20)"`
	EmailVerified   bool       `json:"email_verified" gorm:"not null"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
}
