package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tenant-service/internal/authz"
	"tenant-service/internal/handler"
	"tenant-service/internal/membership"
	"tenant-service/internal/middleware"
	"tenant-service/internal/model"
	"tenant-service/internal/session"
	"tenant-service/internal/tenant"
	"tenant-service/internal/testutil"
	"tenant-service/pkg/cache"
	"tenant-service/pkg/jwtutil"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type server struct {
	t        *testing.T
	db       *gorm.DB
	e        *echo.Echo
	jwt      *jwtutil.JWTUtil
	sessions *session.Store
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.NewDB(t)
	log := zaptest.NewLogger(t)

	store := cache.NewMemoryStore()
	resolver := tenant.NewResolver(db, store, "selected_tcid", log)
	sessions := session.NewStore(db)
	engine := membership.NewEngine(db, resolver, session.NewCascade(sessions, nil, time.Second, log), log)
	authorizer := authz.NewAuthorizer(db, resolver, log)
	types, err := tenant.NewRepository[model.ExpenseType](db, resolver, log)
	require.NoError(t, err)
	expenses, err := tenant.NewRepository[model.Expense](db, resolver, log)
	require.NoError(t, err)
	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "test-secret", ExpirationHours: 1})

	e := echo.New()
	e.GET("/health", handler.NewHealthHandler(db, store).HealthCheck)
	handler.RegisterRoutes(e, handler.Handlers{
		Tenant:     handler.NewTenantHandler(resolver, authorizer, engine),
		Membership: handler.NewMembershipHandler(engine, resolver, authorizer),
		Expense:    handler.NewExpenseHandler(types, expenses),
	}, middleware.AuthMiddleware(jwtUtil, sessions), authorizer)

	return &server{t: t, db: db, e: e, jwt: jwtUtil, sessions: sessions}
}

// login opens a session for a fresh user and returns its id and bearer token
func (s *server) login() (uuid.UUID, string) {
	s.t.Helper()
	userID := uuid.New()
	sess, err := s.sessions.Create(context.Background(), userID, time.Hour, "test", "127.0.0.1")
	require.NoError(s.t, err)
	token, err := s.jwt.GenerateToken(userID.String()+"@example.com", userID, sess.ID, time.Now())
	require.NoError(s.t, err)
	return userID, token
}

func (s *server) do(token, method, path string, body interface{}) (int, map[string]interface{}) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

// createCompany registers a company for token and returns its id
func (s *server) createCompany(token, name string) string {
	s.t.Helper()
	status, body := s.do(token, http.MethodPost, "/api/companies", map[string]string{
		"legal_name": name,
		"tax_no":     uuid.NewString()[:20],
	})
	require.Equal(s.t, http.StatusCreated, status, body)
	return body["company"].(map[string]interface{})["id"].(string)
}

func (s *server) currentCompany(token string) (string, string) {
	s.t.Helper()
	status, body := s.do(token, http.MethodGet, "/api/me/tenant", nil)
	require.Equal(s.t, http.StatusOK, status, body)
	return body["company_id"].(string), body["role"].(string)
}

func TestHealthCheck(t *testing.T) {
	s := newServer(t)
	status, body := s.do("", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthCheckDependencies(t *testing.T) {
	s := newServer(t)
	status, body := s.do("", http.MethodGet, "/health?check=deps", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["db_status"])
	assert.Equal(t, "ok", body["cache_status"])

	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	status, body = s.do("", http.MethodGet, "/health?check=deps", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "error", body["db_status"])
}

func TestAPIRequiresAuthentication(t *testing.T) {
	s := newServer(t)
	status, _ := s.do("", http.MethodGet, "/api/memberships", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do("not-a-token", http.MethodGet, "/api/memberships", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCompanyLedger(t *testing.T) {
	s := newServer(t)
	_, owner := s.login()
	companyID := s.createCompany(owner, "Acme Ltd")

	current, role := s.currentCompany(owner)
	assert.Equal(t, companyID, current)
	assert.Equal(t, string(model.RoleOwner), role)

	status, body := s.do(owner, http.MethodPost, "/api/expense-types", map[string]string{"name": "Travel"})
	require.Equal(t, http.StatusCreated, status, body)
	expenseType := body["expense_type"].(map[string]interface{})
	assert.Equal(t, companyID, expenseType["tenant_company_id"])

	status, body = s.do(owner, http.MethodPost, "/api/expense-types", map[string]string{"name": "Travel"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, expenseType["id"], body["expense_type"].(map[string]interface{})["id"])

	for _, amount := range []string{"12.50", "7.25"} {
		status, body = s.do(owner, http.MethodPost, "/api/expenses", map[string]string{
			"expense_type_id": expenseType["id"].(string),
			"date":            "2024-03-01",
			"amount":          amount,
		})
		require.Equal(t, http.StatusCreated, status, body)
	}

	status, body = s.do(owner, http.MethodGet, "/api/expenses/summary", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, "19.75", body["total"])

	status, body = s.do(owner, http.MethodPost, "/api/expenses", map[string]string{
		"expense_type_id": uuid.NewString(),
		"date":            "2024-03-01",
		"amount":          "1",
	})
	assert.Equal(t, http.StatusNotFound, status, body)

	status, _ = s.do(owner, http.MethodPost, "/api/expenses", map[string]string{
		"expense_type_id": expenseType["id"].(string),
		"date":            "2024-03-01",
		"amount":          "-3",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTenantIsolation(t *testing.T) {
	s := newServer(t)
	_, alice := s.login()
	_, bob := s.login()
	s.createCompany(alice, "Alice Co")
	s.createCompany(bob, "Bob Co")

	_, body := s.do(alice, http.MethodPost, "/api/expense-types", map[string]string{"name": "Rent"})
	typeID := body["expense_type"].(map[string]interface{})["id"].(string)
	status, body := s.do(alice, http.MethodPost, "/api/expenses", map[string]string{
		"expense_type_id": typeID,
		"date":            "2024-01-31",
		"amount":          "1000",
	})
	require.Equal(t, http.StatusCreated, status, body)
	expenseID := body["expense"].(map[string]interface{})["id"].(string)

	status, body = s.do(bob, http.MethodGet, "/api/expenses", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["expenses"])

	status, body = s.do(bob, http.MethodGet, "/api/expenses/summary", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0.00", body["total"])

	status, _ = s.do(bob, http.MethodDelete, "/api/expenses/"+expenseID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// bob cannot book against alice's expense type either
	status, _ = s.do(bob, http.MethodPost, "/api/expenses", map[string]string{
		"expense_type_id": typeID,
		"date":            "2024-01-31",
		"amount":          "1",
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(alice, http.MethodDelete, "/api/expenses/"+expenseID, nil)
	assert.Equal(t, http.StatusOK, status)
	status, body = s.do(alice, http.MethodGet, "/api/expenses", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["expenses"])
}

func TestWithoutTenantContext(t *testing.T) {
	s := newServer(t)
	_, token := s.login()

	status, _ := s.do(token, http.MethodGet, "/api/me/tenant", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := s.do(token, http.MethodGet, "/api/expense-types", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["expense_types"])

	status, body = s.do(token, http.MethodPost, "/api/expense-types", map[string]string{"name": "Food"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, tenant.ErrMissingTenantContext.Error(), body["error"])

	status, _ = s.do(token, http.MethodPost, "/api/memberships", map[string]string{
		"user_id": uuid.NewString(),
		"role":    "member",
	})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestSelectCompany(t *testing.T) {
	s := newServer(t)
	_, token := s.login()
	first := s.createCompany(token, "First")
	second := s.createCompany(token, "Second")

	current, _ := s.currentCompany(token)
	assert.Equal(t, second, current)

	status, body := s.do(token, http.MethodPost, "/api/memberships/select", map[string]string{"company_id": first})
	require.Equal(t, http.StatusOK, status, body)
	current, _ = s.currentCompany(token)
	assert.Equal(t, first, current)

	status, body = s.do(token, http.MethodGet, "/api/memberships", nil)
	require.Equal(t, http.StatusOK, status)
	views := body["memberships"].([]interface{})
	require.Len(t, views, 2)
	assert.Equal(t, first, views[0].(map[string]interface{})["company_id"])
	assert.Equal(t, true, views[0].(map[string]interface{})["is_selected"])
	assert.Equal(t, false, views[1].(map[string]interface{})["is_selected"])

	status, _ = s.do(token, http.MethodPost, "/api/memberships/select", map[string]string{"company_id": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMemberAdministration(t *testing.T) {
	s := newServer(t)
	_, owner := s.login()
	companyID := s.createCompany(owner, "Acme Ltd")
	memberID, member := s.login()

	status, body := s.do(owner, http.MethodPost, "/api/memberships", map[string]string{
		"user_id": memberID.String(),
		"role":    "member",
	})
	require.Equal(t, http.StatusCreated, status, body)
	membershipID := body["membership"].(map[string]interface{})["id"].(string)

	status, _ = s.do(owner, http.MethodPost, "/api/memberships", map[string]string{
		"user_id": memberID.String(),
		"role":    "member",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(owner, http.MethodPost, "/api/memberships", map[string]string{
		"user_id": uuid.NewString(),
		"role":    "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	// the first membership of a user is selected automatically
	current, role := s.currentCompany(member)
	assert.Equal(t, companyID, current)
	assert.Equal(t, string(model.RoleMember), role)

	status, _ = s.do(member, http.MethodPost, "/api/memberships", map[string]string{
		"user_id": uuid.NewString(),
		"role":    "member",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(owner, http.MethodGet, "/api/me/tenant/members", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, body["account_ids"], 2)
	assert.Contains(t, body, "owner_account_id")
	status, body = s.do(owner, http.MethodGet, "/api/me/tenant/members?admins=true", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []interface{}{body["owner_account_id"]}, body["account_ids"])

	status, body = s.do(owner, http.MethodPatch, "/api/memberships/"+membershipID, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, status, body)
	_, role = s.currentCompany(member)
	assert.Equal(t, string(model.RoleAdmin), role)

	// admins cannot grant ownership
	status, _ = s.do(member, http.MethodPost, "/api/memberships", map[string]string{
		"user_id": uuid.NewString(),
		"role":    "owner",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(owner, http.MethodGet, "/api/memberships", nil)
	require.Equal(t, http.StatusOK, status)
	ownerMembershipID := body["memberships"].([]interface{})[0].(map[string]interface{})["id"].(string)
	status, _ = s.do(member, http.MethodDelete, "/api/memberships/"+ownerMembershipID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(owner, http.MethodDelete, "/api/memberships/"+membershipID, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.NotContains(t, body, "promoted_company_id")

	// removal revoked the member's sessions
	status, _ = s.do(member, http.MethodGet, "/api/memberships", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(owner, http.MethodDelete, "/api/memberships/"+membershipID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMembershipOfAnotherCompanyIsHidden(t *testing.T) {
	s := newServer(t)
	_, alice := s.login()
	_, bob := s.login()
	s.createCompany(alice, "Alice Co")
	s.createCompany(bob, "Bob Co")

	_, body := s.do(bob, http.MethodGet, "/api/memberships", nil)
	bobMembership := body["memberships"].([]interface{})[0].(map[string]interface{})["id"].(string)

	status, _ := s.do(alice, http.MethodPatch, "/api/memberships/"+bobMembership, map[string]bool{"is_active": false})
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(alice, http.MethodDelete, "/api/memberships/"+bobMembership, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
