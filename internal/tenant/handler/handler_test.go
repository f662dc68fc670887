package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopstream/internal/tenant/service"
	"shopstream/internal/tenant/store"
	"shopstream/pkg/secrets"
	"shopstream/pkg/testutil"
)

func newRouter(t *testing.T) *chi.Mux {
	t.Helper()

	cipher, err := secrets.NewCipher("test-encryption-key")
	require.NoError(t, err)
	registry := service.New(store.NewInMemory(), cipher, testutil.Logger())

	router := chi.NewRouter()
	New(registry, testutil.Logger()).Register(router)
	return router
}

func postJSON(t *testing.T, router *chi.Mux, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerTenant(t *testing.T, router *chi.Mux, shopDomain string) tenantResponse {
	t.Helper()

	rec := postJSON(t, router, "/admin/tenants", registerRequest{
		Name:        "Acme Outfitters",
		Domain:      shopDomain,
		AccessToken: "shpat_token",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp tenantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleRegister_ReturnsSecretOnce(t *testing.T) {
	router := newRouter(t)

	created := registerTenant(t, router, "acme.myshopify.com")
	assert.Equal(t, "active", created.Status)
	assert.NotEmpty(t, created.WebhookSecret)

	// Subsequent reads never expose the secret again.
	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/"+created.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched tenantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Empty(t, fetched.WebhookSecret)
	assert.Equal(t, created.Domain, fetched.Domain)
}

func TestHandleRegister_DuplicateDomain(t *testing.T) {
	router := newRouter(t)
	registerTenant(t, router, "acme.myshopify.com")

	rec := postJSON(t, router, "/admin/tenants", registerRequest{
		Name:        "Copycat",
		Domain:      "acme.myshopify.com",
		AccessToken: "shpat_other",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRegister_InvalidPayload(t *testing.T) {
	router := newRouter(t)

	rec := postJSON(t, router, "/admin/tenants", registerRequest{
		Name:        "",
		Domain:      "not-a-shop-domain",
		AccessToken: "shpat_token",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleList_OnlyActive(t *testing.T) {
	router := newRouter(t)
	first := registerTenant(t, router, "acme.myshopify.com")
	registerTenant(t, router, "globex.myshopify.com")

	rec := postJSON(t, router, "/admin/tenants/"+first.ID+"/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var resp struct {
		Tenants []tenantResponse `json:"tenants"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &resp))
	require.Len(t, resp.Tenants, 1)
	assert.Equal(t, "globex.myshopify.com", resp.Tenants[0].Domain)
}

func TestHandleSuspendReactivate_Cycle(t *testing.T) {
	router := newRouter(t)
	created := registerTenant(t, router, "acme.myshopify.com")

	rec := postJSON(t, router, "/admin/tenants/"+created.ID+"/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var suspended tenantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &suspended))
	assert.Equal(t, "suspended", suspended.Status)

	// A second suspend is an illegal transition.
	rec = postJSON(t, router, "/admin/tenants/"+created.ID+"/suspend", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, router, "/admin/tenants/"+created.ID+"/reactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reactivated tenantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reactivated))
	assert.Equal(t, "active", reactivated.Status)
}

func TestHandleGet_UnknownTenant(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGet_InvalidID(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
