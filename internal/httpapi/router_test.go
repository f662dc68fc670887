package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authhandler "shopstream/internal/auth/handler"
	authmodels "shopstream/internal/auth/models"
	authservice "shopstream/internal/auth/service"
	authstore "shopstream/internal/auth/store"
	"shopstream/internal/auth/tokens"
	eventhandler "shopstream/internal/event/handler"
	"shopstream/internal/event/processor"
	eventstore "shopstream/internal/event/store"
	"shopstream/internal/platform/database"
	"shopstream/internal/platform/ratelimit"
	tenanthandler "shopstream/internal/tenant/handler"
	tenantservice "shopstream/internal/tenant/service"
	tenantstore "shopstream/internal/tenant/store"
	webhookhandler "shopstream/internal/webhook/handler"
	"shopstream/pkg/secrets"
	"shopstream/pkg/testutil"
)

type fixture struct {
	router http.Handler
	tokens *tokens.Manager
}

func newFixture(t *testing.T, health map[string]HealthCheck) *fixture {
	t.Helper()

	logger := testutil.Logger()
	m := testutil.Metrics()

	cipher, err := secrets.NewCipher("test-encryption-key")
	require.NoError(t, err)
	registry := tenantservice.New(tenantstore.NewInMemory(), cipher, logger)

	events := eventstore.NewInMemory()
	proc := processor.New(events, database.NoopTransactor{}, processor.NewAppliers(),
		m, logger, 5, time.Minute)

	tm := tokens.NewManager([]byte("test-signing-key"), "shopstream")
	auth := authservice.New(authstore.NewInMemory(), tm, logger)

	router := NewRouter(Deps{
		Webhooks: webhookhandler.New(registry, proc, ratelimit.NewInMemory(60, time.Minute), m, logger),
		Tenants:  tenanthandler.New(registry, logger),
		Events:   eventhandler.New(events, registry, proc, logger),
		Auth:     authhandler.New(auth, logger),
		Tokens:   tm,
		Health:   Health(health),
		Logger:   logger,
	})
	return &fixture{router: router, tokens: tm}
}

func (f *fixture) tokenFor(t *testing.T, role authmodels.Role) string {
	t.Helper()
	pair, err := f.tokens.IssuePair(&authmodels.User{ID: 1, TenantID: 0, Role: role})
	require.NoError(t, err)
	return pair.AccessToken
}

func (f *fixture) get(target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz_AllDependenciesOK(t *testing.T) {
	f := newFixture(t, map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	})

	rec := f.get("/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["database"])
}

func TestHealthz_DegradedDependency(t *testing.T) {
	f := newFixture(t, map[string]HealthCheck{
		"database": func(context.Context) error { return errors.New("connection refused") },
		"redis":    func(context.Context) error { return nil },
	})

	rec := f.get("/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unavailable", resp.Dependencies["database"])
	assert.Equal(t, "ok", resp.Dependencies["redis"])
}

func TestMetrics_Exposed(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get("/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutes_RequireAuth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get("/admin/events/stats", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes_OperatorCanReadEvents(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get("/admin/events/stats", f.tokenFor(t, authmodels.RoleOperator))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutes_OperatorCannotManageTenants(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get("/admin/tenants", f.tokenFor(t, authmodels.RoleOperator))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRoutes_AdminManagesTenants(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get("/admin/tenants", f.tokenFor(t, authmodels.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
}
