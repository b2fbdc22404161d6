package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tenant-service/internal/model"
	"tenant-service/prometheus"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Scope describes who is asking and which tenant the operation runs against.
// With neither TenantCompanyID nor TenantCompany set the tenant is resolved from User.
type Scope struct {
	User uuid.UUID

	// Administrative path: run against this company, bypassing the resolver.
	TenantCompanyID uuid.UUID
	TenantCompany   *model.Company

	IncludeDeleted bool

	// DisableSafetyChecks lets Create keep a record's pre-set, different tenant.
	DisableSafetyChecks bool
}

// ForUser scopes an operation to the tenant context of userID
func ForUser(userID uuid.UUID) Scope {
	return Scope{User: userID}
}

// ForCompany scopes an operation to companyID on behalf of actor
func ForCompany(companyID, actor uuid.UUID) Scope {
	return Scope{User: actor, TenantCompanyID: companyID}
}

// Order sorts by one column
type Order struct {
	Column string
	Desc   bool
}

// Query narrows a scoped read. Column names are checked against the entity schema.
type Query struct {
	Where   map[string]interface{}
	Exclude map[string]interface{}
	OrderBy []Order
	Limit   int
	Offset  int
}

// Repository reads and writes one tenant-owned entity type.
// Every operation passes through scoped, which applies the tenant predicate
// and hides soft-deleted rows; there is no unscoped entry point.
type Repository[T any, PT interface {
	*T
	model.TenantOwned
}] struct {
	db       *gorm.DB
	resolver *Resolver
	log      *zap.Logger
	schema   *schema.Schema
}

// NewRepository builds a repository for T, e.g. NewRepository[model.Expense](db, resolver, log)
func NewRepository[T any, PT interface {
	*T
	model.TenantOwned
}](db *gorm.DB, resolver *Resolver, log *zap.Logger) (*Repository[T, PT], error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("parse tenant entity: %w", err)
	}
	return &Repository[T, PT]{
		db:       db,
		resolver: resolver,
		log:      log.Named("tenant_repository").With(zap.String("table", stmt.Schema.Table)),
		schema:   stmt.Schema,
	}, nil
}

// tenantOf returns the company the scope operates on
func (r *Repository[T, PT]) tenantOf(ctx context.Context, scope Scope) (uuid.UUID, error) {
	if scope.TenantCompany != nil && scope.TenantCompany.ID != uuid.Nil {
		return scope.TenantCompany.ID, nil
	}
	if scope.TenantCompanyID != uuid.Nil {
		return scope.TenantCompanyID, nil
	}
	return r.resolver.Resolve(ctx, scope.User)
}

// writeTenantOf is tenantOf for writes: an unresolved context is an error
func (r *Repository[T, PT]) writeTenantOf(ctx context.Context, scope Scope) (uuid.UUID, error) {
	companyID, err := r.tenantOf(ctx, scope)
	if errors.Is(err, ErrNotResolved) {
		prometheus.RecordTenantError("missing_tenant_context")
		r.log.Warn("Write without tenant context", zap.String("user_id", scope.User.String()))
		return uuid.Nil, ErrMissingTenantContext
	}
	return companyID, err
}

func (r *Repository[T, PT]) column(name string) (clause.Column, error) {
	field := r.schema.LookUpField(name)
	if field == nil || field.DBName == "" {
		return clause.Column{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, r.schema.Table, name)
	}
	return clause.Column{Table: r.schema.Table, Name: field.DBName}, nil
}

// scoped is the single point where the tenant predicate is attached
func (r *Repository[T, PT]) scoped(ctx context.Context, db *gorm.DB, companyID uuid.UUID, scope Scope) *gorm.DB {
	q := db.WithContext(ctx).Model(PT(new(T))).
		Where(clause.Eq{Column: clause.Column{Table: r.schema.Table, Name: "tenant_company_id"}, Value: companyID})
	if !scope.IncludeDeleted {
		q = q.Where(clause.Eq{Column: clause.Column{Table: r.schema.Table, Name: "is_deleted"}, Value: false})
	}
	return q
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Repository[T, PT]) apply(q *gorm.DB, query Query) (*gorm.DB, error) {
	for _, name := range sortedKeys(query.Where) {
		col, err := r.column(name)
		if err != nil {
			return nil, err
		}
		q = q.Where(clause.Eq{Column: col, Value: query.Where[name]})
	}
	for _, name := range sortedKeys(query.Exclude) {
		col, err := r.column(name)
		if err != nil {
			return nil, err
		}
		q = q.Where(clause.Neq{Column: col, Value: query.Exclude[name]})
	}
	for _, o := range query.OrderBy {
		col, err := r.column(o.Column)
		if err != nil {
			return nil, err
		}
		q = q.Order(clause.OrderByColumn{Column: col, Desc: o.Desc})
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	if query.Offset > 0 {
		q = q.Offset(query.Offset)
	}
	return q, nil
}

// read prepares a scoped query. ok is false when the tenant context is unresolved,
// in which case callers return an empty result.
func (r *Repository[T, PT]) read(ctx context.Context, scope Scope, query Query) (q *gorm.DB, ok bool, err error) {
	companyID, err := r.tenantOf(ctx, scope)
	if errors.Is(err, ErrNotResolved) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	q, err = r.apply(r.scoped(ctx, r.db, companyID, scope), query)
	if err != nil {
		return nil, false, err
	}
	return q, true, nil
}

// Find returns the record with id in the caller's tenant
func (r *Repository[T, PT]) Find(ctx context.Context, scope Scope, id uuid.UUID) (PT, error) {
	return r.First(ctx, scope, Query{Where: map[string]interface{}{"id": id}})
}

// First returns the first record matching query, or ErrObjectNotFoundForTenant
func (r *Repository[T, PT]) First(ctx context.Context, scope Scope, query Query) (PT, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	q, ok, err := r.read(ctx, scope, query)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrObjectNotFoundForTenant
	}

	entity := PT(new(T))
	if err := q.Take(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrObjectNotFoundForTenant
		}
		return nil, fmt.Errorf("find %s: %w", r.schema.Table, err)
	}
	return entity, nil
}

// List returns every record matching query; an unresolved tenant yields an empty list
func (r *Repository[T, PT]) List(ctx context.Context, scope Scope, query Query) ([]T, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	out := []T{}
	q, ok, err := r.read(ctx, scope, query)
	if err != nil || !ok {
		return out, err
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", r.schema.Table, err)
	}
	return out, nil
}

// Count returns the number of records matching query
func (r *Repository[T, PT]) Count(ctx context.Context, scope Scope, query Query) (int64, error) {
	defer prometheus.TrackDBOperation("count")(time.Now())

	query.OrderBy, query.Limit, query.Offset = nil, 0, 0
	q, ok, err := r.read(ctx, scope, query)
	if err != nil || !ok {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.schema.Table, err)
	}
	return n, nil
}

// Exists reports whether any record matches query
func (r *Repository[T, PT]) Exists(ctx context.Context, scope Scope, query Query) (bool, error) {
	n, err := r.Count(ctx, scope, query)
	return n > 0, err
}

// Pluck loads one column of the matching records into dest, a pointer to a slice
func (r *Repository[T, PT]) Pluck(ctx context.Context, scope Scope, column string, query Query, dest interface{}) error {
	defer prometheus.TrackDBOperation("query")(time.Now())

	col, err := r.column(column)
	if err != nil {
		return err
	}
	q, ok, err := r.read(ctx, scope, query)
	if err != nil || !ok {
		return err
	}
	if err := q.Pluck(col.Name, dest).Error; err != nil {
		return fmt.Errorf("pluck %s.%s: %w", r.schema.Table, col.Name, err)
	}
	return nil
}

// Sum adds up a numeric column over the matching records
func (r *Repository[T, PT]) Sum(ctx context.Context, scope Scope, column string, query Query) (decimal.Decimal, error) {
	defer prometheus.TrackDBOperation("aggregate")(time.Now())

	col, err := r.column(column)
	if err != nil {
		return decimal.Zero, err
	}
	query.OrderBy, query.Limit, query.Offset = nil, 0, 0
	q, ok, err := r.read(ctx, scope, query)
	if err != nil || !ok {
		return decimal.Zero, err
	}

	var row struct {
		Total decimal.NullDecimal
	}
	quoted := q.Statement.Quote(col)
	if err := q.Select("SUM(" + quoted + ") AS total").Scan(&row).Error; err != nil {
		return decimal.Zero, fmt.Errorf("sum %s.%s: %w", r.schema.Table, col.Name, err)
	}
	if !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal, nil
}

// checkTenantCompany verifies the target company can own new records
func checkTenantCompany(ctx context.Context, db *gorm.DB, companyID uuid.UUID) error {
	var n int64
	if err := db.WithContext(ctx).Model(&model.Company{}).
		Where("id = ? AND is_deleted = ?", companyID, false).
		Count(&n).Error; err != nil {
		return fmt.Errorf("check tenant company: %w", err)
	}
	if n == 0 {
		return ErrTenantCompanyUnavailable
	}

	if err := db.WithContext(ctx).Model(&model.Membership{}).
		Where("company_id = ? AND is_deleted = ?", companyID, false).
		Count(&n).Error; err != nil {
		return fmt.Errorf("check tenant members: %w", err)
	}
	if n == 0 {
		return ErrTenantWithoutMembers
	}
	return nil
}

// prepareCreate assigns the tenant, stamps the creator and activates the record; it performs no writes
func (r *Repository[T, PT]) prepareCreate(companyID uuid.UUID, scope Scope, entity PT) error {
	if existing := entity.GetTenantCompanyID(); existing != uuid.Nil && existing != companyID {
		if !scope.DisableSafetyChecks {
			prometheus.RecordTenantError("tenant_mismatch")
			r.log.Warn("Create with foreign tenant rejected",
				zap.String("user_id", scope.User.String()),
				zap.String("context_company_id", companyID.String()),
				zap.String("record_company_id", existing.String()))
			return ErrTenantMismatch
		}
	} else {
		entity.SetTenantCompanyID(companyID)
	}
	audit := entity.Audit()
	if err := audit.StampCreated(scope.User); err != nil {
		return err
	}
	audit.IsActive = true
	return nil
}

func (r *Repository[T, PT]) insert(ctx context.Context, db *gorm.DB, scope Scope, entity PT) error {
	if err := checkTenantCompany(ctx, db, entity.GetTenantCompanyID()); err != nil {
		return err
	}
	if err := db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create %s: %w", r.schema.Table, err)
	}
	r.log.Debug("Record created",
		zap.String("id", entity.Audit().ID.String()),
		zap.String("tenant_company_id", entity.GetTenantCompanyID().String()),
		zap.String("created_by", scope.User.String()))
	return nil
}

// Create stores entity in the caller's tenant
func (r *Repository[T, PT]) Create(ctx context.Context, scope Scope, entity PT) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())

	companyID, err := r.writeTenantOf(ctx, scope)
	if err != nil {
		return err
	}
	if err := r.prepareCreate(companyID, scope, entity); err != nil {
		return err
	}
	return r.insert(ctx, r.db, scope, entity)
}

// GetOrCreate returns the record matching conds, creating entity when there is none.
// entity must already carry the values of conds. A create that loses a race
// against a concurrent creator returns the winner's record.
func (r *Repository[T, PT]) GetOrCreate(ctx context.Context, scope Scope, conds map[string]interface{}, entity PT) (PT, bool, error) {
	found, err := r.First(ctx, scope, Query{Where: conds})
	if err == nil {
		return found, false, nil
	}
	if !errors.Is(err, ErrObjectNotFoundForTenant) {
		return nil, false, err
	}

	createErr := r.Create(ctx, scope, entity)
	if createErr == nil {
		return entity, true, nil
	}
	if errors.Is(createErr, gorm.ErrDuplicatedKey) {
		if found, err := r.First(ctx, scope, Query{Where: conds}); err == nil {
			return found, false, nil
		}
	}
	return nil, false, createErr
}

// immutableColumns cannot be named in updates. Audit columns are stamped by the
// repository and deletion goes through Remove.
var immutableColumns = map[string]bool{
	"id":                true,
	"tenant_company_id": true,
	"created_at":        true,
	"created_by":        true,
	"updated_at":        true,
	"updated_by":        true,
	"is_deleted":        true,
	"deleted_at":        true,
	"deleted_by":        true,
}

// UpdateOrCreate applies updates to the record matching conds under a row lock,
// or creates entity when there is none. entity must already carry the values
// of conds and updates.
func (r *Repository[T, PT]) UpdateOrCreate(ctx context.Context, scope Scope, conds, updates map[string]interface{}, entity PT) (PT, bool, error) {
	defer prometheus.TrackDBOperation("upsert")(time.Now())

	assignments := make(map[string]interface{}, len(updates)+2)
	for name, value := range updates {
		col, err := r.column(name)
		if err != nil {
			return nil, false, err
		}
		if immutableColumns[col.Name] {
			prometheus.RecordTenantError("immutable_field")
			return nil, false, fmt.Errorf("%w: %s", ErrImmutableField, col.Name)
		}
		assignments[col.Name] = value
	}

	companyID, err := r.writeTenantOf(ctx, scope)
	if err != nil {
		return nil, false, err
	}
	if scope.User == uuid.Nil {
		return nil, false, ErrMissingActor
	}

	var (
		result  PT
		created bool
	)
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := r.apply(r.scoped(ctx, tx, companyID, scope), Query{Where: conds})
		if err != nil {
			return err
		}

		existing := PT(new(T))
		err = q.Clauses(clause.Locking{Strength: "UPDATE"}).Take(existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := r.prepareCreate(companyID, scope, entity); err != nil {
				return err
			}
			if err := r.insert(ctx, tx, scope, entity); err != nil {
				return err
			}
			result, created = entity, true
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock %s: %w", r.schema.Table, err)
		}

		assignments["updated_by"] = scope.User
		assignments["updated_at"] = time.Now()
		if err := tx.Model(existing).Updates(assignments).Error; err != nil {
			return fmt.Errorf("update %s: %w", r.schema.Table, err)
		}
		if err := tx.Take(existing, "id = ?", existing.Audit().ID).Error; err != nil {
			return fmt.Errorf("reload %s: %w", r.schema.Table, err)
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// Remove soft-deletes the record with id in the caller's tenant
func (r *Repository[T, PT]) Remove(ctx context.Context, scope Scope, id uuid.UUID) error {
	defer prometheus.TrackDBOperation("delete")(time.Now())

	companyID, err := r.writeTenantOf(ctx, scope)
	if err != nil {
		return err
	}
	if scope.User == uuid.Nil {
		return ErrMissingActor
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entity := PT(new(T))
		err := r.scoped(ctx, tx, companyID, Scope{}).
			Where(clause.Eq{Column: clause.Column{Table: r.schema.Table, Name: "id"}, Value: id}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(entity).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrObjectNotFoundForTenant
		}
		if err != nil {
			return fmt.Errorf("lock %s: %w", r.schema.Table, err)
		}

		if err := entity.Audit().MarkDeleted(scope.User, time.Now()); err != nil {
			return err
		}
		if err := tx.Save(entity).Error; err != nil {
			return fmt.Errorf("soft delete %s: %w", r.schema.Table, err)
		}
		r.log.Info("Record removed",
			zap.String("id", id.String()),
			zap.String("tenant_company_id", companyID.String()),
			zap.String("deleted_by", scope.User.String()))
		return nil
	})
}
