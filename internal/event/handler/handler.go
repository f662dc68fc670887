// Package handler exposes the event ledger to operators: inspection,
// queue statistics, and dead-letter reprocessing.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"shopstream/internal/event/models"
	"shopstream/internal/event/processor"
	"shopstream/internal/event/store"
	"shopstream/internal/platform/httputil"
	"shopstream/internal/platform/middleware"
	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
)

// Authorizer enforces tenant isolation on record access.
type Authorizer interface {
	Authorize(requestTenant, recordTenant domain.TenantID) error
}

// Ingestor records control events through the normal ingest path.
type Ingestor interface {
	Ingest(ctx context.Context, req processor.IngestRequest) (processor.Outcome, error)
}

// Handler serves the event admin routes.
type Handler struct {
	events   store.Store
	tenants  Authorizer
	ingestor Ingestor
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an event handler.
func New(events store.Store, tenants Authorizer, ingestor Ingestor, logger *slog.Logger) *Handler {
	return &Handler{events: events, tenants: tenants, ingestor: ingestor, logger: logger, now: time.Now}
}

// Register mounts the event admin routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/events", h.HandleList)
	r.Get("/admin/events/stats", h.HandleStats)
	r.Get("/admin/events/{id}", h.HandleGet)
	r.Post("/admin/events/{id}/reprocess", h.HandleReprocess)
}

type eventResponse struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	EventType      string     `json:"event_type"`
	EntityType     string     `json:"entity_type"`
	EntityID       string     `json:"entity_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Status         string     `json:"status"`
	ReceivedAt     time.Time  `json:"received_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	RetryCount     int        `json:"retry_count"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CorrelationID  string     `json:"correlation_id,omitempty"`
}

func toEventResponse(ev *models.Event) eventResponse {
	return eventResponse{
		ID:             ev.ID.String(),
		TenantID:       ev.TenantID.String(),
		EventType:      string(ev.EventType),
		EntityType:     string(ev.EntityType),
		EntityID:       string(ev.EntityID),
		IdempotencyKey: ev.IdempotencyKey,
		Status:         string(ev.Status),
		ReceivedAt:     ev.ReceivedAt,
		ProcessedAt:    ev.ProcessedAt,
		RetryCount:     ev.RetryCount,
		ErrorMessage:   ev.ErrorMessage,
		CorrelationID:  ev.CorrelationID,
	}
}

// HandleList returns a tenant's events, optionally filtered by status.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := domain.ParseTenantID(r.URL.Query().Get("tenant_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid or missing tenant_id"))
		return
	}
	if err := h.authorize(ctx, tenantID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := models.EventStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	events, err := h.events.ListByTenant(ctx, tenantID, status, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "event list failed", "error", err, "tenant_id", tenantID)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResponse(ev))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}

// HandleStats returns the ledger's status counts.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.events.CountByStatus(ctx)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count events"))
		return
	}
	out := make(map[string]int64, len(counts))
	for status, count := range counts {
		out[string(status)] = count
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"counts": out})
}

// HandleGet returns one event.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ev, err := h.load(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventResponse(ev))
}

// HandleReprocess schedules corrective processing for a dead-lettered
// event. The original record is never mutated: a fresh sync/requested
// control event re-drives the entity through the pipeline.
func (h *Handler) HandleReprocess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ev, err := h.load(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if ev.Status != models.StatusDeadLetter {
		httputil.WriteError(w, dErrors.NewWithDetails(dErrors.CodeConflict,
			"only dead-lettered events can be reprocessed",
			map[string]any{"status": string(ev.Status)}))
		return
	}

	payload, err := json.Marshal(map[string]any{
		"reason":          "dead_letter_reprocess",
		"source_event_id": ev.ID,
		"entity_type":     string(ev.EntityType),
		"entity_id":       string(ev.EntityID),
		"requested_at":    h.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build control event"))
		return
	}

	outcome, err := h.ingestor.Ingest(ctx, processor.IngestRequest{
		TenantID:      ev.TenantID,
		EventType:     models.EventSyncRequested,
		EntityType:    models.EntityTenant,
		EntityID:      domain.ExternalID(ev.TenantID.String()),
		Payload:       payload,
		OccurredAt:    h.now(),
		CorrelationID: ev.CorrelationID,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "reprocess scheduling failed", "error", err, "event_id", ev.ID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "dead-letter reprocess scheduled",
		"source_event_id", ev.ID,
		"control_event_id", outcome.Event.ID,
		"tenant_id", ev.TenantID)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
		"source_event": toEventResponse(ev),
		"control_event": map[string]any{
			"id":     outcome.Event.ID.String(),
			"status": string(outcome.Event.Status),
		},
	})
}

func (h *Handler) load(ctx context.Context, rawID string) (*models.Event, error) {
	eventID, err := domain.ParseEventID(rawID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid event id")
	}
	ev, err := h.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "event not found")
	}
	if err := h.authorize(ctx, ev.TenantID); err != nil {
		return nil, err
	}
	return ev, nil
}

// authorize enforces tenant isolation for tenant-scoped operators;
// platform-wide operators pass.
func (h *Handler) authorize(ctx context.Context, recordTenant domain.TenantID) error {
	claims := middleware.ClaimsFrom(ctx)
	if claims == nil || claims.TenantID == 0 {
		return nil
	}
	return h.tenants.Authorize(claims.TenantID, recordTenant)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
