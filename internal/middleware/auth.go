package middleware

import (
	"context"
	"net/http"
	"strings"

	"tenant-service/pkg/jwtutil"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	userClaimsKey = "user"
	userIDKey     = "user_id"
)

// SessionChecker reports whether a session may still authenticate requests
type SessionChecker interface {
	IsActive(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
}

// AuthMiddleware validates the bearer token and the session it was issued for
func AuthMiddleware(jwtUtil *jwtutil.JWTUtil, sessions SessionChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			sessionID, _ := claims.SessionID()
			active, err := sessions.IsActive(c.Request().Context(), sessionID, claims.UserID)
			if err != nil {
				log.Error("Failed to check session", zap.Error(err))
				prometheus.RecordAuthError("session_lookup_failed")
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session check failed"})
			}
			if !active {
				log.Info("Rejected revoked or expired session",
					zap.String("user_id", claims.UserID.String()),
					zap.String("session_id", sessionID.String()))
				prometheus.RecordAuthError("session_revoked")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session is no longer valid"})
			}

			c.Set(userClaimsKey, claims)
			c.Set(userIDKey, claims.UserID)
			c.Set(logger.UserIDKey, claims.UserID.String())

			return next(c)
		}
	}
}

// UserID returns the authenticated user of the request
func UserID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(userIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// Claims returns the validated token claims of the request
func Claims(c echo.Context) (*jwtutil.UserClaims, bool) {
	claims, ok := c.Get(userClaimsKey).(*jwtutil.UserClaims)
	return claims, ok
}
