package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tenant-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestRequestIDMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(RequestIDMiddleware(zaptest.NewLogger(t)))

	var fromEcho, fromCtx *zap.Logger
	e.GET("/", func(c echo.Context) error {
		fromEcho = logger.FromEcho(c)
		fromCtx = logger.FromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		assert.NotNil(t, fromEcho)
		assert.Same(t, fromEcho, fromCtx)
	})

	t.Run("keeps incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
	})
}
