package session

import (
	"context"
	"sync"
	"time"

	"tenant-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Revoker ends every session of a user
type Revoker interface {
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Cascade revokes a user's sessions after one of their memberships was removed.
// It never fails the caller: errors are logged and counted.
type Cascade struct {
	revoker        Revoker
	notifier       Notifier
	publishTimeout time.Duration
	log            *zap.Logger

	wg sync.WaitGroup
}

// NewCascade builds a cascade; notifier may be nil
func NewCascade(revoker Revoker, notifier Notifier, publishTimeout time.Duration, log *zap.Logger) *Cascade {
	return &Cascade{
		revoker:        revoker,
		notifier:       notifier,
		publishTimeout: publishTimeout,
		log:            log.Named("session_cascade"),
	}
}

func (c *Cascade) OnMembershipRemoved(ctx context.Context, userID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			prometheus.RecordSessionRevocationFailure()
			c.log.Error("Session revocation panicked", zap.String("user_id", userID.String()), zap.Any("panic", r))
		}
	}()

	revoked, err := c.revoker.RevokeAllForUser(ctx, userID)
	if err != nil {
		prometheus.RecordSessionRevocationFailure()
		c.log.Error("Failed to revoke sessions", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	prometheus.RecordSessionRevocations(revoked)
	c.log.Info("Sessions revoked", zap.String("user_id", userID.String()), zap.Int64("count", revoked))

	if c.notifier == nil || revoked == 0 {
		return
	}
	event := RevokedEvent{
		UserID:    userID.String(),
		Revoked:   revoked,
		Reason:    "membership_removed",
		RevokedAt: time.Now().UTC().Format(time.RFC3339),
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
		defer cancel()

		err := c.notifier.Publish(pctx, event)
		prometheus.RecordRevocationPublish(err)
		if err != nil {
			c.log.Warn("Failed to publish session revocation", zap.String("user_id", event.UserID), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight notifications have finished
func (c *Cascade) Wait() {
	c.wg.Wait()
}
