package model

import (
	"time"

	"github.com/google/uuid"
)

// Session is a server-side login session. Its ID is the token's jti claim.
// Sessions belong to the authentication collaborator and are not audited records.
type Session struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" gorm:"index"`
	UserAgent string     `json:"user_agent" gorm:"type:varchar(255)"`
	IP        string     `json:"ip" gorm:"type:varchar(45)"`
}

// Active reports whether the session can still authenticate requests at now
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// All returns every model the service migrates
func All() []interface{} {
	return []interface{}{
		&Company{},
		&Account{},
		&Membership{},
		&ExpenseType{},
		&Expense{},
		&Session{},
	}
}
