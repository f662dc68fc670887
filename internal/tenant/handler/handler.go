// Package handler exposes tenant administration over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shopstream/internal/platform/httputil"
	"shopstream/internal/tenant/models"
	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
)

// Service defines the tenant operations the handler needs. Returns domain
// objects, not HTTP response DTOs.
type Service interface {
	Register(ctx context.Context, name, shopDomain, accessToken, webhookSecret string) (*models.Tenant, error)
	Get(ctx context.Context, tenantID domain.TenantID) (*models.Tenant, error)
	Suspend(ctx context.Context, tenantID domain.TenantID) (*models.Tenant, error)
	Reactivate(ctx context.Context, tenantID domain.TenantID) (*models.Tenant, error)
	ActiveTenants(ctx context.Context) ([]*models.Tenant, error)
}

// Handler serves the tenant admin routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a tenant handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the tenant admin routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/tenants", h.HandleRegister)
	r.Get("/admin/tenants", h.HandleList)
	r.Get("/admin/tenants/{id}", h.HandleGet)
	r.Post("/admin/tenants/{id}/suspend", h.HandleSuspend)
	r.Post("/admin/tenants/{id}/reactivate", h.HandleReactivate)
}

type registerRequest struct {
	Name          string `json:"name"`
	Domain        string `json:"domain"`
	AccessToken   string `json:"access_token"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

type tenantResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Domain        string     `json:"domain"`
	Status        string     `json:"status"`
	WebhookSecret string     `json:"webhook_secret,omitempty"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toTenantResponse(t *models.Tenant, includeSecret bool) tenantResponse {
	resp := tenantResponse{
		ID:           t.ID.String(),
		Name:         t.Name,
		Domain:       t.Domain,
		Status:       string(t.Status),
		LastSyncedAt: t.LastSyncedAt,
		CreatedAt:    t.CreatedAt,
	}
	if includeSecret {
		resp.WebhookSecret = t.WebhookSecret
	}
	return resp
}

// HandleRegister onboards a tenant. The webhook secret is returned exactly
// once, in this response.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[registerRequest](w, r, h.logger)
	if !ok {
		return
	}

	tenant, err := h.service.Register(ctx, req.Name, req.Domain, req.AccessToken, req.WebhookSecret)
	if err != nil {
		h.logger.ErrorContext(ctx, "tenant registration failed", "error", err, "domain", req.Domain)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toTenantResponse(tenant, true))
}

// HandleList returns all active tenants.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenants, err := h.service.ActiveTenants(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "tenant list failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, toTenantResponse(t, false))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"tenants": out})
}

// HandleGet returns one tenant.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := domain.ParseTenantID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid tenant id"))
		return
	}

	tenant, err := h.service.Get(ctx, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTenantResponse(tenant, false))
}

// HandleSuspend suspends a tenant; its webhook deliveries are refused until
// reactivation.
func (h *Handler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Suspend)
}

// HandleReactivate reactivates a suspended tenant.
func (h *Handler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reactivate)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.TenantID) (*models.Tenant, error)) {
	ctx := r.Context()
	tenantID, err := domain.ParseTenantID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid tenant id"))
		return
	}

	tenant, err := fn(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "tenant transition failed", "error", err, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTenantResponse(tenant, false))
}
