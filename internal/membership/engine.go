package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
	"tenant-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionCascade is notified after a membership has been removed
type SessionCascade interface {
	OnMembershipRemoved(ctx context.Context, userID uuid.UUID)
}

// Engine serializes membership changes per account and keeps two rules:
// every account with an eligible membership has exactly one selected, and
// every company has at most one owner. The resolver cache is written only
// after the transaction that changed the selection has committed.
type Engine struct {
	db       *gorm.DB
	resolver *tenant.Resolver
	cascade  SessionCascade
	log      *zap.Logger
}

func NewEngine(db *gorm.DB, resolver *tenant.Resolver, cascade SessionCascade, log *zap.Logger) *Engine {
	return &Engine{
		db:       db,
		resolver: resolver,
		cascade:  cascade,
		log:      log.Named("membership_engine"),
	}
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

// Get returns a live membership by id
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*model.Membership, error) {
	var m model.Membership
	err := e.db.WithContext(ctx).Take(&m, "id = ? AND is_deleted = ?", id, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &m, nil
}

// Upsert creates or updates m on behalf of actor, repairing the account's
// selection and rejecting a second owner before anything is written
func (e *Engine) Upsert(ctx context.Context, m *model.Membership, actor uuid.UUID) error {
	defer prometheus.TrackDBOperation("membership_upsert")(time.Now())

	var userID uuid.UUID
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		userID, err = e.upsert(ctx, tx, m, actor)
		return err
	})
	prometheus.RecordMembershipOperation("upsert", err)
	if err != nil {
		e.log.Warn("Membership upsert rejected",
			zap.String("account_id", m.AccountID.String()),
			zap.String("company_id", m.CompanyID.String()),
			zap.String("role", string(m.Role)),
			zap.Error(err))
		return err
	}

	e.syncTenantContext(ctx, userID)
	e.log.Info("Membership saved",
		zap.String("membership_id", m.ID.String()),
		zap.String("account_id", m.AccountID.String()),
		zap.String("company_id", m.CompanyID.String()),
		zap.Bool("selected", m.IsSelected))
	return nil
}

// upsert runs inside tx and returns the user whose tenant context may have changed
func (e *Engine) upsert(ctx context.Context, tx *gorm.DB, m *model.Membership, actor uuid.UUID) (uuid.UUID, error) {
	if actor == uuid.Nil {
		return uuid.Nil, ErrMissingActor
	}
	if !m.Role.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
	}

	account, err := lockAccount(ctx, tx, m.AccountID)
	if err != nil {
		return uuid.Nil, err
	}

	isNew, err := e.prepare(ctx, tx, m, actor)
	if err != nil {
		return uuid.Nil, err
	}

	if err := checkOwner(ctx, tx, m); err != nil {
		return uuid.Nil, err
	}

	siblings, err := loadSiblings(ctx, tx, m.AccountID, m.ID)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := e.applySelection(ctx, tx, m, siblings, actor); err != nil {
		return uuid.Nil, err
	}

	if isNew {
		err = tx.WithContext(ctx).Create(m).Error
	} else {
		err = tx.WithContext(ctx).Save(m).Error
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return uuid.Nil, ErrDuplicateMembership
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("save membership: %w", err)
	}
	return account.UserID, nil
}

// prepare stamps m and reports whether it has to be inserted. A soft-deleted
// membership for the same account and company is revived instead of duplicated.
func (e *Engine) prepare(ctx context.Context, tx *gorm.DB, m *model.Membership, actor uuid.UUID) (bool, error) {
	var company model.Company
	err := tx.WithContext(ctx).Take(&company, "id = ? AND is_deleted = ?", m.CompanyID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrCompanyNotFound
	}
	if err != nil {
		return false, fmt.Errorf("load company: %w", err)
	}

	var current model.Membership
	if m.ID != uuid.Nil {
		err = tx.WithContext(ctx).Take(&current, "id = ?", m.ID).Error
	} else {
		err = tx.WithContext(ctx).Take(&current, "account_id = ? AND company_id = ?", m.AccountID, m.CompanyID).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, m.StampCreated(actor)
	}
	if err != nil {
		return false, fmt.Errorf("load membership: %w", err)
	}

	if current.AccountID != m.AccountID || current.CompanyID != m.CompanyID {
		return false, ErrMembershipImmutable
	}
	if m.ID == uuid.Nil {
		if !current.IsDeleted {
			return false, ErrDuplicateMembership
		}
		m.ID = current.ID
		m.IsActive = true
		m.IsDeleted = false
	}
	m.CreatedAt = current.CreatedAt
	m.CreatedBy = current.CreatedBy
	return false, m.StampUpdated(actor)
}

func lockAccount(ctx context.Context, tx *gorm.DB, accountID uuid.UUID) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).Clauses(forUpdate).
		Take(&account, "id = ? AND is_deleted = ?", accountID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return &account, nil
}

// checkOwner rejects a second owner for the company. Owner rows count whether
// active, inactive or removed; only the row being written is exempt. The company
// row lock serializes owner writers that belong to different accounts.
func checkOwner(ctx context.Context, tx *gorm.DB, m *model.Membership) error {
	if m.Role != model.RoleOwner {
		return nil
	}

	var company model.Company
	if err := tx.WithContext(ctx).Clauses(forUpdate).Take(&company, "id = ?", m.CompanyID).Error; err != nil {
		return fmt.Errorf("lock company: %w", err)
	}

	var owners int64
	if err := tx.WithContext(ctx).Model(&model.Membership{}).
		Where("company_id = ? AND role = ? AND id <> ?", m.CompanyID, model.RoleOwner, m.ID).
		Count(&owners).Error; err != nil {
		return fmt.Errorf("count owners: %w", err)
	}
	if owners > 0 {
		prometheus.RecordTenantError("duplicate_owner")
		return ErrDuplicateOwner
	}
	return nil
}

// loadSiblings returns the account's other eligible memberships, newest first
func loadSiblings(ctx context.Context, tx *gorm.DB, accountID, exclude uuid.UUID) ([]model.Membership, error) {
	var siblings []model.Membership
	err := tx.WithContext(ctx).
		Where("account_id = ? AND id <> ? AND is_active = ? AND is_deleted = ?", accountID, exclude, true, false).
		Order("created_at DESC, id DESC").
		Find(&siblings).Error
	if err != nil {
		return nil, fmt.Errorf("load sibling memberships: %w", err)
	}
	return siblings, nil
}

// applySelection decides the selection flag of candidate and updates siblings
// so that exactly one eligible membership stays selected. It returns the
// sibling it promoted, if any. candidate itself is not written.
func (e *Engine) applySelection(ctx context.Context, tx *gorm.DB, candidate *model.Membership, siblings []model.Membership, actor uuid.UUID) (*model.Membership, error) {
	var selected []uuid.UUID
	for _, s := range siblings {
		if s.IsSelected {
			selected = append(selected, s.ID)
		}
	}

	if candidate.Eligible() {
		switch {
		case candidate.IsSelected && len(selected) > 0:
			return nil, setSelected(ctx, tx, selected, false, actor)
		case !candidate.IsSelected && len(selected) == 0:
			candidate.IsSelected = true
		}
		return nil, nil
	}

	candidate.IsSelected = false
	if len(selected) > 0 || len(siblings) == 0 {
		return nil, nil
	}
	promoted := siblings[0]
	if err := setSelected(ctx, tx, []uuid.UUID{promoted.ID}, true, actor); err != nil {
		return nil, err
	}
	promoted.IsSelected = true
	return &promoted, nil
}

func setSelected(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, selected bool, actor uuid.UUID) error {
	err := tx.WithContext(ctx).Model(&model.Membership{}).
		Where("id IN ?", ids).
		UpdateColumns(map[string]interface{}{
			"is_selected": selected,
			"updated_by":  actor,
			"updated_at":  time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update selection: %w", err)
	}
	return nil
}

// Remove soft-deletes a membership, promotes the account's most recent other
// membership when the removed one was selected, and revokes the user's sessions.
// It returns the promoted membership, if any.
func (e *Engine) Remove(ctx context.Context, id, actor uuid.UUID) (*model.Membership, error) {
	defer prometheus.TrackDBOperation("membership_remove")(time.Now())

	if actor == uuid.Nil {
		return nil, ErrMissingActor
	}

	var (
		userID   uuid.UUID
		promoted *model.Membership
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Membership
		err := tx.WithContext(ctx).Take(&m, "id = ? AND is_deleted = ?", id, false).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMembershipNotFound
		}
		if err != nil {
			return fmt.Errorf("load membership: %w", err)
		}

		account, err := lockAccount(ctx, tx, m.AccountID)
		if err != nil {
			return err
		}
		userID = account.UserID

		// re-read under the account lock
		err = tx.WithContext(ctx).Take(&m, "id = ? AND is_deleted = ?", id, false).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMembershipNotFound
		}
		if err != nil {
			return fmt.Errorf("reload membership: %w", err)
		}

		if m.IsSelected {
			e.resolver.Invalidate(ctx, userID)
		}

		if err := m.MarkDeleted(actor, time.Now()); err != nil {
			return err
		}
		m.IsSelected = false
		if err := tx.WithContext(ctx).Save(&m).Error; err != nil {
			return fmt.Errorf("soft delete membership: %w", err)
		}

		siblings, err := loadSiblings(ctx, tx, m.AccountID, m.ID)
		if err != nil {
			return err
		}
		promoted, err = e.applySelection(ctx, tx, &m, siblings, actor)
		return err
	})
	prometheus.RecordMembershipOperation("remove", err)
	if err != nil {
		return nil, err
	}

	e.syncTenantContext(ctx, userID)
	fields := []zap.Field{
		zap.String("membership_id", id.String()),
		zap.String("user_id", userID.String()),
	}
	if promoted != nil {
		fields = append(fields, zap.String("promoted_company_id", promoted.CompanyID.String()))
	}
	e.log.Info("Membership removed", fields...)

	if e.cascade != nil {
		e.cascade.OnMembershipRemoved(ctx, userID)
	}
	return promoted, nil
}

// SelectCompany makes the user's membership in companyID the selected one
func (e *Engine) SelectCompany(ctx context.Context, userID, companyID, actor uuid.UUID) (*model.Membership, error) {
	var m model.Membership
	err := e.db.WithContext(ctx).
		Select("memberships.*").
		Joins("JOIN accounts ON accounts.id = memberships.account_id").
		Where("accounts.user_id = ? AND accounts.is_deleted = ?", userID, false).
		Where("memberships.company_id = ? AND memberships.is_active = ? AND memberships.is_deleted = ?", companyID, true, false).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}

	m.IsSelected = true
	if err := e.Upsert(ctx, &m, actor); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateCompany stores a new company and makes userID its owner in one transaction.
// The account is created when the user has none; the new company becomes selected.
func (e *Engine) CreateCompany(ctx context.Context, company *model.Company, userID uuid.UUID, email string) (*model.Membership, error) {
	if err := company.StampCreated(userID); err != nil {
		return nil, err
	}
	company.IsActive = true

	owner := &model.Membership{CompanyID: company.ID, Role: model.RoleOwner, IsSelected: true}
	owner.IsActive = true
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := ensureAccount(ctx, tx, userID, email)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(company).Error; err != nil {
			return fmt.Errorf("create company: %w", err)
		}
		owner.AccountID = account.ID
		_, err = e.upsert(ctx, tx, owner, userID)
		return err
	})
	prometheus.RecordMembershipOperation("create_company", err)
	if err != nil {
		return nil, err
	}

	e.syncTenantContext(ctx, userID)
	e.log.Info("Company created",
		zap.String("company_id", company.ID.String()),
		zap.String("owner_user_id", userID.String()))
	return owner, nil
}

// EnsureAccount returns the account of userID, creating it when missing
func (e *Engine) EnsureAccount(ctx context.Context, userID uuid.UUID, email string) (*model.Account, error) {
	var account *model.Account
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		account, err = ensureAccount(ctx, tx, userID, email)
		return err
	})
	return account, err
}

func ensureAccount(ctx context.Context, tx *gorm.DB, userID uuid.UUID, email string) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).Take(&account, "user_id = ?", userID).Error
	if err == nil {
		if account.IsDeleted {
			return nil, ErrAccountNotFound
		}
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load account: %w", err)
	}

	account = model.Account{UserID: userID, Email: email}
	if err := account.StampCreated(userID); err != nil {
		return nil, err
	}
	account.IsActive = true
	if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &account, nil
}

const maxSyncAttempts = 3

// syncTenantContext writes the committed selection of userID through to the cache.
// The selection is read back after each write; a concurrent commit that landed
// in between makes it write again, so the last writer leaves the cache equal
// to storage.
func (e *Engine) syncTenantContext(ctx context.Context, userID uuid.UUID) {
	written := uuid.Nil
	for attempt := 0; attempt < maxSyncAttempts; attempt++ {
		companyID, err := tenant.SelectedCompany(ctx, e.db, userID)
		if err != nil && !errors.Is(err, tenant.ErrNotResolved) {
			e.log.Warn("Failed to read committed selection, dropping cached tenant context",
				zap.String("user_id", userID.String()), zap.Error(err))
			e.resolver.Invalidate(ctx, userID)
			return
		}
		if attempt > 0 && companyID == written {
			return
		}

		if companyID == uuid.Nil {
			e.resolver.Invalidate(ctx, userID)
		} else {
			e.resolver.Set(ctx, userID, companyID)
		}
		written = companyID
	}
	e.log.Warn("Tenant selection kept changing while syncing cache", zap.String("user_id", userID.String()))
}
