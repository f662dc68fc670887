package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	eventmodels "shopstream/internal/event/models"
	"shopstream/internal/platform/metrics"
	tenantmodels "shopstream/internal/tenant/models"
	"shopstream/pkg/domain"
	"shopstream/pkg/idempotency"
)

// FixedTime is the deterministic clock base used across tests.
var FixedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Clock returns a time source frozen at FixedTime.
func Clock() func() time.Time {
	return func() time.Time { return FixedTime }
}

// Metrics returns a metrics set backed by a fresh registry, so tests can
// construct as many as they need without registration collisions.
func Metrics() *metrics.Metrics {
	return metrics.NewWith(prometheus.NewRegistry())
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TenantBuilder provides a fluent interface for building test tenants.
type TenantBuilder struct {
	tenant *tenantmodels.Tenant
}

// NewTenantBuilder creates a TenantBuilder with sensible defaults.
func NewTenantBuilder() *TenantBuilder {
	return &TenantBuilder{
		tenant: &tenantmodels.Tenant{
			ID:            1,
			Name:          "Test Shop",
			Domain:        "test-shop.myshopify.com",
			AccessToken:   "encrypted-token",
			WebhookSecret: "test-webhook-secret",
			Status:        tenantmodels.TenantStatusActive,
			CreatedAt:     FixedTime,
			UpdatedAt:     FixedTime,
		},
	}
}

func (b *TenantBuilder) WithID(id domain.TenantID) *TenantBuilder {
	b.tenant.ID = id
	return b
}

func (b *TenantBuilder) WithDomain(shopDomain string) *TenantBuilder {
	b.tenant.Domain = shopDomain
	return b
}

func (b *TenantBuilder) WithStatus(status tenantmodels.TenantStatus) *TenantBuilder {
	b.tenant.Status = status
	return b
}

func (b *TenantBuilder) WithWebhookSecret(secret string) *TenantBuilder {
	b.tenant.WebhookSecret = secret
	return b
}

func (b *TenantBuilder) Build() *tenantmodels.Tenant {
	t := *b.tenant
	return &t
}

// EventBuilder provides a fluent interface for building test events.
type EventBuilder struct {
	tenantID   domain.TenantID
	eventType  eventmodels.EventType
	entityType eventmodels.EntityType
	entityID   domain.ExternalID
	payload    json.RawMessage
	receivedAt time.Time
	key        string
}

// NewEventBuilder creates an EventBuilder with sensible defaults.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{
		tenantID:   1,
		eventType:  eventmodels.EventOrderCreated,
		entityType: eventmodels.EntityOrder,
		entityID:   "12345",
		payload:    json.RawMessage(`{"id": 12345, "total_price": "100.50", "currency": "USD"}`),
		receivedAt: FixedTime,
	}
}

func (b *EventBuilder) WithTenantID(id domain.TenantID) *EventBuilder {
	b.tenantID = id
	return b
}

func (b *EventBuilder) WithType(eventType eventmodels.EventType, entityType eventmodels.EntityType) *EventBuilder {
	b.eventType = eventType
	b.entityType = entityType
	return b
}

func (b *EventBuilder) WithEntityID(id domain.ExternalID) *EventBuilder {
	b.entityID = id
	return b
}

func (b *EventBuilder) WithPayload(payload string) *EventBuilder {
	b.payload = json.RawMessage(payload)
	return b
}

func (b *EventBuilder) WithReceivedAt(ts time.Time) *EventBuilder {
	b.receivedAt = ts
	return b
}

func (b *EventBuilder) WithKey(key string) *EventBuilder {
	b.key = key
	return b
}

// Build derives an idempotency key (unless one was set) and constructs a
// pending event.
func (b *EventBuilder) Build() *eventmodels.Event {
	key := b.key
	if key == "" {
		var err error
		key, err = idempotency.Derive(b.tenantID, string(b.entityType), string(b.entityID), string(b.eventType), b.receivedAt)
		if err != nil {
			panic(fmt.Sprintf("building test event: %v", err))
		}
	}
	return eventmodels.New(b.tenantID, b.eventType, b.entityType, b.entityID, key, b.payload, "test-correlation", b.receivedAt)
}
