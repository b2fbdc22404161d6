package handler

import (
	"errors"
	"net/http"
	"time"

	"tenant-service/pkg/cache"
	"tenant-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const healthProbeKey = "health:probe"

// HealthHandler reports liveness, and readiness of storage and cache on request
type HealthHandler struct {
	db    *gorm.DB
	store cache.Store
}

func NewHealthHandler(db *gorm.DB, store cache.Store) *HealthHandler {
	return &HealthHandler{db: db, store: store}
}

// HealthCheck handles the health check endpoint; ?check=deps also probes the database and cache
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	response := echo.Map{
		"status":  "healthy",
		"service": "tenant-service",
		"time":    time.Now().Format(time.RFC3339),
	}
	if c.QueryParam("check") != "deps" {
		return c.JSON(http.StatusOK, response)
	}

	log := logger.FromEcho(c)
	ctx := c.Request().Context()
	status := http.StatusOK

	response["db_status"] = "ok"
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		log.Error("Database ping error", zap.Error(err))
		response["status"] = "unhealthy"
		response["db_status"] = "error"
		status = http.StatusServiceUnavailable
	}

	// a miss proves the cache answered
	response["cache_status"] = "ok"
	if _, err := h.store.Get(ctx, healthProbeKey); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		log.Error("Cache probe error", zap.Error(err))
		response["status"] = "unhealthy"
		response["cache_status"] = "error"
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, response)
}
