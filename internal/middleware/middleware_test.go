package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tenant-service/internal/middleware"
	"tenant-service/internal/model"
	"tenant-service/pkg/jwtutil"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionChecker struct {
	active bool
	err    error
}

func (s sessionChecker) IsActive(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return s.active, s.err
}

type roleChecker bool

func (r roleChecker) HasRole(context.Context, uuid.UUID, model.Role) bool { return bool(r) }

func serve(t *testing.T, mw []echo.MiddlewareFunc, header string, setup func(echo.Context)) (*httptest.ResponseRecorder, uuid.UUID) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}

	var seen uuid.UUID
	h := func(c echo.Context) error {
		seen, _ = middleware.UserID(c)
		return c.NoContent(http.StatusOK)
	}
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	require.NoError(t, h(c))
	return rec, seen
}

func TestAuthMiddleware(t *testing.T) {
	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "test-secret", ExpirationHours: 1})
	userID := uuid.New()
	token, err := jwtUtil.GenerateToken("user@example.com", userID, uuid.New(), time.Now())
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		sessions sessionChecker
		status   int
	}{
		{"missing header", "", sessionChecker{active: true}, http.StatusUnauthorized},
		{"not bearer", "Basic " + token, sessionChecker{active: true}, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", sessionChecker{active: true}, http.StatusUnauthorized},
		{"revoked session", "Bearer " + token, sessionChecker{active: false}, http.StatusUnauthorized},
		{"session lookup fails", "Bearer " + token, sessionChecker{err: errors.New("db down")}, http.StatusInternalServerError},
		{"valid", "Bearer " + token, sessionChecker{active: true}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, seen := serve(t, []echo.MiddlewareFunc{middleware.AuthMiddleware(jwtUtil, tt.sessions)}, tt.header, nil)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, userID, seen)
			}
		})
	}
}

func TestAuthMiddlewareSetsClaims(t *testing.T) {
	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "test-secret", ExpirationHours: 1})
	userID := uuid.New()
	token, err := jwtUtil.GenerateToken("user@example.com", userID, uuid.New(), time.Now())
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := e.NewContext(req, httptest.NewRecorder())

	var claims *jwtutil.UserClaims
	h := middleware.AuthMiddleware(jwtUtil, sessionChecker{active: true})(func(c echo.Context) error {
		claims, _ = middleware.Claims(c)
		return nil
	})
	require.NoError(t, h(c))
	require.NotNil(t, claims)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestRequireRole(t *testing.T) {
	authenticated := func(c echo.Context) { c.Set("user_id", uuid.New()) }

	rec, _ := serve(t, []echo.MiddlewareFunc{middleware.RequireRole(roleChecker(true), model.RoleAdmin)}, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(t, []echo.MiddlewareFunc{middleware.RequireRole(roleChecker(false), model.RoleAdmin)}, "", authenticated)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(t, []echo.MiddlewareFunc{middleware.RequireRole(roleChecker(true), model.RoleAdmin)}, "", authenticated)
	assert.Equal(t, http.StatusOK, rec.Code)
}
