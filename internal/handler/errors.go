package handler

import (
	"errors"
	"net/http"

	"tenant-service/internal/membership"
	"tenant-service/internal/tenant"
	"tenant-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// statusFor maps domain errors to HTTP status codes; anything unknown is a 500
func statusFor(err error) int {
	switch {
	case errors.Is(err, tenant.ErrObjectNotFoundForTenant),
		errors.Is(err, membership.ErrMembershipNotFound),
		errors.Is(err, membership.ErrCompanyNotFound),
		errors.Is(err, membership.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenant.ErrMissingTenantContext),
		errors.Is(err, tenant.ErrImmutableField),
		errors.Is(err, tenant.ErrUnknownColumn),
		errors.Is(err, membership.ErrInvalidRole),
		errors.Is(err, membership.ErrMembershipImmutable),
		errors.Is(err, tenant.ErrMissingActor):
		return http.StatusBadRequest
	case errors.Is(err, tenant.ErrTenantMismatch),
		errors.Is(err, membership.ErrNotDeletable):
		return http.StatusForbidden
	case errors.Is(err, membership.ErrDuplicateOwner),
		errors.Is(err, membership.ErrDuplicateMembership),
		errors.Is(err, tenant.ErrTenantCompanyUnavailable),
		errors.Is(err, tenant.ErrTenantWithoutMembers),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes it as a JSON error response
func fail(c echo.Context, log *zap.Logger, msg string, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
		prometheus.RecordTenantError("internal")
		return c.JSON(status, echo.Map{"error": "internal server error"})
	}
	log.Warn(msg, zap.Error(err), zap.Int("status", status))
	return c.JSON(status, echo.Map{"error": err.Error()})
}
