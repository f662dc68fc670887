// Package applier translates event payloads into projection writes. One
// applier per entity type; every Apply is idempotent and guarded by the
// projection's sequence check.
package applier

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"shopstream/internal/event/models"
	"shopstream/internal/sentinel"
	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
)

// sequenceOf resolves the ordering sequence for an event. Payloads may
// carry an explicit "sequence" counter; otherwise the payload's updated_at
// timestamp stands in, and an event with neither falls back to its receipt
// time. Timestamps convert to nanoseconds so the two sources stay on one
// comparable axis within a tenant.
func sequenceOf(ev *models.Event, payload map[string]json.RawMessage) int64 {
	if raw, ok := payload["sequence"]; ok {
		var seq int64
		if err := json.Unmarshal(raw, &seq); err == nil {
			return seq
		}
	}
	if raw, ok := payload["updated_at"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				return ts.UnixNano()
			}
		}
	}
	return ev.ReceivedAt.UnixNano()
}

// decodePayload parses the event payload into a field map. A payload that
// is not a JSON object can never be applied and is a validation failure.
func decodePayload(ev *models.Event) (map[string]json.RawMessage, error) {
	if len(ev.Payload) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "event payload is empty")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(ev.Payload, &fields); err != nil {
		return nil, dErrors.NewWithDetails(dErrors.CodeValidation,
			"event payload is not a JSON object",
			map[string]any{"event_id": ev.ID})
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// moneyCents parses a decimal money string like "100.50" into cents.
// Fractional digits past the cent are refused rather than rounded.
func moneyCents(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	whole, frac, _ := strings.Cut(value, ".")
	negative := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, dErrors.NewWithDetails(dErrors.CodeValidation,
			"malformed money value", map[string]any{"value": value})
	}
	var cents int64
	if frac != "" {
		if len(frac) > 2 {
			return 0, dErrors.NewWithDetails(dErrors.CodeValidation,
				"money value has sub-cent precision", map[string]any{"value": value})
		}
		for len(frac) < 2 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, dErrors.NewWithDetails(dErrors.CodeValidation,
				"malformed money value", map[string]any{"value": value})
		}
	}
	total := units*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}

// externalIDField reads an entity reference that sources serialize either
// as a JSON number or a string.
func externalIDField(fields map[string]json.RawMessage, name string) domain.ExternalID {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return domain.ExternalID(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return domain.ExternalID(n.String())
	}
	return ""
}

// projectionError translates store sentinels into domain errors the
// processor classifies: a refused sequence is retriable and flagged for the
// sweeper, everything else is internal.
func projectionError(err error, ev *models.Event) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.NewWithDetails(dErrors.CodeOrderingViolation,
			"event arrived behind the projection",
			map[string]any{
				"event_id":    ev.ID,
				"entity_type": string(ev.EntityType),
				"entity_id":   string(ev.EntityID),
			})
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "projection write failed")
}
