package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenant-service/pkg/cache"
	"tenant-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resolver maps a user to the company they are currently operating as.
// The shared cache is consulted first; storage is the source of truth.
// Only the membership engine and the session cascade write the cache.
type Resolver struct {
	db        *gorm.DB
	cache     cache.Store
	namespace string
	log       *zap.Logger
}

func NewResolver(db *gorm.DB, store cache.Store, namespace string, log *zap.Logger) *Resolver {
	return &Resolver{
		db:        db,
		cache:     store,
		namespace: namespace,
		log:       log.Named("tenant_resolver"),
	}
}

// Key returns the cache key holding userID's selected company
func (r *Resolver) Key(userID uuid.UUID) string {
	return r.namespace + ":" + userID.String()
}

// Resolve returns the selected company of userID, or ErrNotResolved
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	if userID == uuid.Nil {
		prometheus.RecordTenantResolution("unresolved")
		return uuid.Nil, ErrNotResolved
	}

	key := r.Key(userID)
	cached, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		if companyID, perr := uuid.Parse(cached); perr == nil {
			prometheus.RecordTenantResolution("hit")
			return companyID, nil
		}
		r.log.Warn("Discarding malformed tenant cache entry", zap.String("key", key), zap.String("value", cached))
		r.Invalidate(ctx, userID)
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		prometheus.RecordTenantResolution("cache_error")
		r.log.Warn("Tenant cache unavailable, resolving from storage", zap.String("key", key), zap.Error(err))
	}

	companyID, err := SelectedCompany(ctx, r.db, userID)
	if err != nil {
		if errors.Is(err, ErrNotResolved) {
			prometheus.RecordTenantResolution("unresolved")
		}
		return uuid.Nil, err
	}

	prometheus.RecordTenantResolution("miss")
	r.Set(ctx, userID, companyID)
	return companyID, nil
}

// Set writes the selected company of userID through to the cache, without expiry
func (r *Resolver) Set(ctx context.Context, userID, companyID uuid.UUID) {
	if err := r.cache.Set(ctx, r.Key(userID), companyID.String()); err != nil {
		r.log.Warn("Failed to cache tenant context",
			zap.String("user_id", userID.String()),
			zap.String("company_id", companyID.String()),
			zap.Error(err))
	}
}

// Invalidate drops the cached tenant context of userID
func (r *Resolver) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := r.cache.Delete(ctx, r.Key(userID)); err != nil {
		r.log.Warn("Failed to invalidate tenant context",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

// SelectedCompany reads userID's selected company from storage.
// db may be a transaction.
func SelectedCompany(ctx context.Context, db *gorm.DB, userID uuid.UUID) (uuid.UUID, error) {
	defer prometheus.TrackDBOperation("resolve_tenant")(time.Now())

	var row struct {
		CompanyID uuid.UUID
	}
	result := db.WithContext(ctx).
		Table("memberships").
		Select("memberships.company_id").
		Joins("JOIN accounts ON accounts.id = memberships.account_id").
		Joins("JOIN companies ON companies.id = memberships.company_id").
		Where("accounts.user_id = ? AND accounts.is_deleted = ?", userID, false).
		Where("memberships.is_selected = ? AND memberships.is_active = ? AND memberships.is_deleted = ?", true, true, false).
		Where("companies.is_deleted = ?", false).
		Limit(1).
		Scan(&row)
	if result.Error != nil {
		return uuid.Nil, fmt.Errorf("resolve tenant of user %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 || row.CompanyID == uuid.Nil {
		return uuid.Nil, ErrNotResolved
	}
	return row.CompanyID, nil
}
