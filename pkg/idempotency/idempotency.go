// Package idempotency derives deterministic deduplication keys from event
// identity, so repeated delivery of the same logical event has a single effect.
//
// Two key variants exist. The timestamp-qualified form distinguishes repeated
// updates to the same entity; the simple form collapses them so only the
// latest state matters. The choice is a per-event-type policy owned by the
// caller, not by this package.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
)

// hashLen is the number of hex characters kept from the SHA-256 digest.
// 64 bits of hash is enough to disambiguate timestamps for one entity.
const hashLen = 16

// Derive builds a timestamp-qualified idempotency key:
//
//	{tenant_id}:{entity_type}:{entity_id}:{event_type}:{hash}
//
// where hash is the first 16 hex characters of SHA-256 over
// {tenant_id}:{entity_id}:{event_type}:{timestamp}. Identical inputs always
// yield the identical key; a different timestamp yields a different key, so
// each distinct update is a distinct event.
func Derive(tenantID domain.TenantID, entityType, entityID, eventType string, ts time.Time) (string, error) {
	if err := validateParts(tenantID, entityType, entityID, eventType); err != nil {
		return "", err
	}

	canonical := fmt.Sprintf("%d:%s:%s:%s", tenantID, entityID, eventType, ts.UTC().Format(time.RFC3339Nano))
	digest := sha256.Sum256([]byte(canonical))
	short := hex.EncodeToString(digest[:])[:hashLen]

	return fmt.Sprintf("%d:%s:%s:%s:%s", tenantID, entityType, entityID, eventType, short), nil
}

// DeriveSimple builds a key without the timestamp hash segment:
//
//	{tenant_id}:{entity_type}:{entity_id}:{event_type}
//
// Use it when only the latest state of an entity matters and intermediate
// updates may be coalesced.
func DeriveSimple(tenantID domain.TenantID, entityType, entityID, eventType string) (string, error) {
	if err := validateParts(tenantID, entityType, entityID, eventType); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%s:%s:%s", tenantID, entityType, entityID, eventType), nil
}

func validateParts(tenantID domain.TenantID, entityType, entityID, eventType string) error {
	if !tenantID.Valid() {
		return dErrors.NewWithDetails(dErrors.CodeValidation, "tenant_id must be positive",
			map[string]any{"field": "tenant_id"})
	}
	if strings.TrimSpace(entityType) == "" {
		return dErrors.NewWithDetails(dErrors.CodeValidation, "entity_type cannot be empty",
			map[string]any{"field": "entity_type"})
	}
	if strings.TrimSpace(entityID) == "" {
		return dErrors.NewWithDetails(dErrors.CodeValidation, "entity_id cannot be empty",
			map[string]any{"field": "entity_id"})
	}
	if strings.TrimSpace(eventType) == "" {
		return dErrors.NewWithDetails(dErrors.CodeValidation, "event_type cannot be empty",
			map[string]any{"field": "event_type"})
	}
	return nil
}

// Components are the parsed segments of an idempotency key. Hash is empty for
// simple (4-segment) keys.
type Components struct {
	TenantID   domain.TenantID
	EntityType string
	EntityID   string
	EventType  string
	Hash       string
}

// Parse splits a key into its components. Event types may legally contain
// colons, so for keys with five or more segments everything between the
// entity ID and the trailing hash is rejoined as the event type.
func Parse(key string) (Components, error) {
	parts := strings.Split(key, ":")
	if len(parts) < 4 {
		return Components{}, dErrors.NewWithDetails(dErrors.CodeValidation,
			"invalid idempotency key format: "+key,
			map[string]any{"expected_parts": "at least 4", "actual_parts": len(parts)})
	}

	tenantID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || tenantID <= 0 {
		return Components{}, dErrors.NewWithDetails(dErrors.CodeValidation,
			"invalid tenant_id in key: "+parts[0],
			map[string]any{"key": key})
	}

	c := Components{
		TenantID:   domain.TenantID(tenantID),
		EntityType: parts[1],
		EntityID:   parts[2],
	}
	if len(parts) > 4 {
		c.EventType = strings.Join(parts[3:len(parts)-1], ":")
		c.Hash = parts[len(parts)-1]
	} else {
		c.EventType = parts[3]
	}
	return c, nil
}

// Validate reports whether the string is a properly formatted idempotency key.
func Validate(key string) bool {
	_, err := Parse(key)
	return err == nil
}

// NewCorrelationID returns a random 128-bit identifier in canonical UUID v4
// text form, used for distributed tracing across the ingestion pipeline.
func NewCorrelationID() string {
	return uuid.NewString()
}

// NewRequestID returns a prefixed request identifier, e.g. "req-<uuid>".
func NewRequestID(prefix string) string {
	if prefix == "" {
		prefix = "req"
	}
	return prefix + "-" + uuid.NewString()
}

// HashPayload returns a deterministic SHA-256 hash of an arbitrary structured
// document. The document is canonicalized by re-encoding as JSON with
// recursively sorted keys, so semantically equal payloads always hash equal.
// Used to detect payload drift between redelivered events claiming the same
// identity.
func HashPayload(doc any) (string, error) {
	canonical, err := canonicalize(doc)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "payload is not hashable")
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}

func canonicalize(doc any) ([]byte, error) {
	// Raw JSON is decoded first so key order in the wire bytes cannot leak
	// into the hash.
	switch raw := doc.(type) {
	case json.RawMessage:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		doc = v
	case []byte:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		doc = v
	}
	// encoding/json writes map keys in sorted order at every nesting level.
	return json.Marshal(doc)
}
