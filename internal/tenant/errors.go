package tenant

import (
	"errors"

	"tenant-service/internal/model"
)

var (
	// ErrNotResolved means the user has no selected membership in a live company.
	ErrNotResolved = errors.New("tenant context could not be resolved")

	// ErrMissingTenantContext is returned by writes attempted without a tenant context.
	ErrMissingTenantContext = errors.New("missing tenant context")

	// ErrTenantMismatch means a record already names a different company than the caller's.
	ErrTenantMismatch = errors.New("record belongs to a different tenant company")

	// ErrObjectNotFoundForTenant is returned for ids that do not exist or belong to another tenant.
	// The two cases are deliberately indistinguishable.
	ErrObjectNotFoundForTenant = errors.New("object not found for tenant")

	// ErrTenantCompanyUnavailable means the tenant company is missing or soft-deleted.
	ErrTenantCompanyUnavailable = errors.New("tenant company does not exist")

	// ErrTenantWithoutMembers means no live membership references the tenant company.
	ErrTenantWithoutMembers = errors.New("tenant company has no members")

	// ErrImmutableField is returned when an update names the tenant, the id or an audit column.
	ErrImmutableField = errors.New("field cannot be changed")

	// ErrUnknownColumn is returned when a query names a column the entity does not have.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrMissingActor aliases the model error so callers can check one package.
	ErrMissingActor = model.ErrMissingActor
)
