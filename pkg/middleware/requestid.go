package middleware

import (
	"tenant-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestIDHeader is the header carrying the request correlation id
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware adds a unique request ID to each request and a
// request-scoped logger to the Echo context and the request context
func RequestIDMiddleware(base *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
				c.Request().Header.Set(RequestIDHeader, requestID)
			}
			c.Response().Header().Set(RequestIDHeader, requestID)

			ctxLogger := base.With(zap.String("request_id", requestID))
			c.Set(logger.EchoLoggerKey, ctxLogger)
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithContext(req.Context(), ctxLogger)))

			return next(c)
		}
	}
}
