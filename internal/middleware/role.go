package middleware

import (
	"context"
	"net/http"

	"tenant-service/internal/model"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RoleChecker answers whether a user holds a role in their current tenant
type RoleChecker interface {
	HasRole(ctx context.Context, userID uuid.UUID, min model.Role) bool
}

// RequireRole rejects requests whose user holds less than min in the selected company.
// It must run after AuthMiddleware.
func RequireRole(checker RoleChecker, min model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := UserID(c)
			if !ok {
				prometheus.RecordAuthError("unauthenticated")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			if !checker.HasRole(c.Request().Context(), userID, min) {
				logger.FromEcho(c).Warn("Insufficient role",
					zap.String("user_id", userID.String()),
					zap.String("required", string(min)))
				prometheus.RecordAuthError("forbidden")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
			}
			return next(c)
		}
	}
}
