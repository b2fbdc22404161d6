package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenant-service/internal/model"
	"tenant-service/prometheus"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrSessionNotFound is returned when no session matches the id and user.
var ErrSessionNotFound = errors.New("session not found")

// Store persists login sessions
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create opens a session for userID that expires after ttl
func (s *Store) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration, userAgent, ip string) (*model.Session, error) {
	defer prometheus.TrackDBOperation("session_insert")(time.Now())

	now := time.Now()
	sess := &model.Session{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		UserAgent: userAgent,
		IP:        ip,
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get returns the session with id owned by userID
func (s *Store) Get(ctx context.Context, id, userID uuid.UUID) (*model.Session, error) {
	var sess model.Session
	err := s.db.WithContext(ctx).Take(&sess, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// IsActive reports whether the session exists, belongs to userID and is neither revoked nor expired
func (s *Store) IsActive(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	sess, err := s.Get(ctx, id, userID)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.Active(time.Now()), nil
}

// RevokeAllForUser marks every live session of userID revoked and returns how many were
func (s *Store) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	defer prometheus.TrackDBOperation("session_revoke")(time.Now())

	result := s.db.WithContext(ctx).Model(&model.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now())
	if result.Error != nil {
		return 0, fmt.Errorf("revoke sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
