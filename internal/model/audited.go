package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrMissingActor is returned when a record is stamped without the user performing the change.
var ErrMissingActor = errors.New("audited record: actor is required")

// AuditedRecord carries identity, timestamps, actor provenance and the soft flags.
// Rows are never physically removed; IsDeleted hides them from every scoped read.
type AuditedRecord struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time  `json:"created_at" gorm:"index"`
	CreatedBy uuid.UUID  `json:"created_by" gorm:"type:uuid;not null"`
	UpdatedAt time.Time  `json:"updated_at"`
	UpdatedBy uuid.UUID  `json:"updated_by" gorm:"type:uuid;not null"`
	IsActive  bool       `json:"is_active" gorm:"not null;index"`
	IsDeleted bool       `json:"is_deleted" gorm:"not null;index"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uuid.UUID `json:"deleted_by,omitempty" gorm:"type:uuid"`
}

// StampCreated records actor as creator and last updater of a new record
func (r *AuditedRecord) StampCreated(actor uuid.UUID) error {
	if actor == uuid.Nil {
		return ErrMissingActor
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedBy = actor
	r.UpdatedBy = actor
	return nil
}

// StampUpdated records actor as the last updater
func (r *AuditedRecord) StampUpdated(actor uuid.UUID) error {
	if actor == uuid.Nil {
		return ErrMissingActor
	}
	r.UpdatedBy = actor
	return nil
}

// MarkDeleted soft-deletes the record on behalf of actor
func (r *AuditedRecord) MarkDeleted(actor uuid.UUID, at time.Time) error {
	if err := r.StampUpdated(actor); err != nil {
		return err
	}
	r.IsDeleted = true
	r.DeletedAt = &at
	r.DeletedBy = &actor
	return nil
}

// BeforeCreate assigns the id and rejects records that were never stamped
func (r *AuditedRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedBy == uuid.Nil || r.UpdatedBy == uuid.Nil {
		return ErrMissingActor
	}
	return nil
}

// BeforeSave keeps the deletion fields populated exactly when IsDeleted is set
func (r *AuditedRecord) BeforeSave(tx *gorm.DB) error {
	if r.UpdatedBy == uuid.Nil {
		return ErrMissingActor
	}
	if r.IsDeleted {
		if r.DeletedAt == nil {
			now := time.Now()
			r.DeletedAt = &now
		}
		if r.DeletedBy == nil {
			by := r.UpdatedBy
			r.DeletedBy = &by
		}
	} else {
		r.DeletedAt = nil
		r.DeletedBy = nil
	}
	return nil
}
