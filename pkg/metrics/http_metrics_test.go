package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics("tenant-service", reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/missing", func(c echo.Context) error { return c.NoContent(http.StatusNotFound) })

	for _, path := range []string{"/ok", "/ok", "/missing"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("tenant-service", "GET", "/ok", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statuses.WithLabelValues("tenant-service", "4xx", "GET", "/missing")))
}

func TestStatusCategory(t *testing.T) {
	assert.Equal(t, "2xx", statusCategory(204))
	assert.Equal(t, "4xx", statusCategory(403))
	assert.Equal(t, "5xx", statusCategory(503))
	assert.Equal(t, "", statusCategory(301))
}
