// Package handler exposes the webhook ingestion endpoint. This is the hot
// path: resolve the tenant, enforce its delivery budget, authenticate the
// payload, and hand it to the processor.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shopstream/internal/event/models"
	"shopstream/internal/event/processor"
	"shopstream/internal/platform/httputil"
	"shopstream/internal/platform/metrics"
	"shopstream/internal/platform/ratelimit"
	tenantmodels "shopstream/internal/tenant/models"
	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
	"shopstream/pkg/secrets"
)

const maxBodyBytes = 1 << 20

// Shopify delivery headers.
const (
	headerShopDomain = "X-Shopify-Shop-Domain"
	headerTopic      = "X-Shopify-Topic"
	headerSignature  = "X-Shopify-Hmac-Sha256"
)

// topicEntities maps webhook topics to the entity they reference.
var topicEntities = map[models.EventType]models.EntityType{
	models.EventOrderCreated:    models.EntityOrder,
	models.EventOrderUpdated:    models.EntityOrder,
	models.EventOrderCancelled:  models.EntityOrder,
	models.EventOrderFulfilled:  models.EntityOrder,
	models.EventOrderPaid:       models.EntityOrder,
	models.EventCustomerCreated: models.EntityCustomer,
	models.EventCustomerUpdated: models.EntityCustomer,
	models.EventCustomerDeleted: models.EntityCustomer,
	models.EventProductCreated:  models.EntityProduct,
	models.EventProductUpdated:  models.EntityProduct,
	models.EventProductDeleted:  models.EntityProduct,
}

// TenantResolver looks up the tenant a delivery belongs to.
type TenantResolver interface {
	ResolveDomain(ctx context.Context, shopDomain string) (*tenantmodels.Tenant, error)
}

// Ingestor records events through the normal ingest path.
type Ingestor interface {
	Ingest(ctx context.Context, req processor.IngestRequest) (processor.Outcome, error)
}

// Handler receives webhook deliveries.
type Handler struct {
	tenants  TenantResolver
	ingestor Ingestor
	limiter  ratelimit.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a webhook handler.
func New(tenants TenantResolver, ingestor Ingestor, limiter ratelimit.Limiter, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{tenants: tenants, ingestor: ingestor, limiter: limiter, metrics: m, logger: logger}
}

// Register mounts the webhook route.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks", h.HandleDelivery)
}

type deliveryResponse struct {
	EventID       string `json:"event_id"`
	Status        string `json:"status"`
	Duplicate     bool   `json:"duplicate"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// HandleDelivery receives a single webhook delivery. Redeliveries return
// 200 with the original record so the source stops retrying.
func (h *Handler) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	shopDomain := r.Header.Get(headerShopDomain)
	if !tenantmodels.ValidDomain(shopDomain) {
		h.reject(w, "invalid_domain", dErrors.New(dErrors.CodeValidation, "missing or malformed shop domain header"))
		return
	}

	tenant, err := h.tenants.ResolveDomain(ctx, shopDomain)
	if err != nil {
		h.reject(w, "unknown_tenant", err)
		return
	}
	if !tenant.IsActive() {
		h.reject(w, "suspended_tenant", dErrors.New(dErrors.CodeForbidden, "tenant is suspended"))
		return
	}

	allowed, retryAfter, err := h.limiter.Allow(ctx, tenant.ID.String())
	if err != nil {
		// A broken limiter must not drop deliveries.
		h.logger.ErrorContext(ctx, "rate limiter unavailable", "error", err)
	} else if !allowed {
		h.reject(w, "rate_limited", &dErrors.Error{
			Code:       dErrors.CodeRateLimited,
			Message:    "webhook delivery budget exhausted",
			RetryAfter: retryAfter,
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.reject(w, "oversized_body", dErrors.New(dErrors.CodeValidation, "payload too large"))
		return
	}

	if !secrets.VerifyWebhook(body, r.Header.Get(headerSignature), tenant.WebhookSecret) {
		h.reject(w, "invalid_signature", dErrors.New(dErrors.CodeUnauthorized, "webhook signature mismatch"))
		return
	}

	eventType := models.EventType(r.Header.Get(headerTopic))
	entityType, ok := topicEntities[eventType]
	if !ok {
		h.reject(w, "unknown_topic", dErrors.NewWithDetails(dErrors.CodeValidation,
			"unknown webhook topic", map[string]any{"topic": string(eventType)}))
		return
	}

	entityID, occurredAt := payloadIdentity(body)
	if entityID == "" {
		h.reject(w, "missing_entity_id", dErrors.New(dErrors.CodeValidation, "payload has no entity id"))
		return
	}

	outcome, err := h.ingestor.Ingest(ctx, processor.IngestRequest{
		TenantID:   tenant.ID,
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    body,
		OccurredAt: occurredAt,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "webhook ingest failed",
			"tenant_id", tenant.ID, "topic", string(eventType), "error", err)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if outcome.Duplicate {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, deliveryResponse{
		EventID:       outcome.Event.ID.String(),
		Status:        string(outcome.Event.Status),
		Duplicate:     outcome.Duplicate,
		CorrelationID: outcome.Event.CorrelationID,
	})
}

func (h *Handler) reject(w http.ResponseWriter, reason string, err error) {
	h.metrics.IncWebhookRejected(reason)
	httputil.WriteError(w, err)
}

// payloadIdentity pulls the entity id and best-known change timestamp out
// of the delivery body.
func payloadIdentity(body []byte) (domain.ExternalID, time.Time) {
	var fields struct {
		ID        json.Number `json:"id"`
		UpdatedAt string      `json:"updated_at"`
		CreatedAt string      `json:"created_at"`
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", time.Time{}
	}

	var occurredAt time.Time
	for _, raw := range []string{fields.UpdatedAt, fields.CreatedAt} {
		if raw == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			occurredAt = ts
			break
		}
	}
	return domain.ExternalID(fields.ID.String()), occurredAt
}
