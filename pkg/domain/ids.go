// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strconv"

	dErrors "shopstream/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing an EventID where a TenantID is expected.
// These mirror the relational schema: bigserial surrogate keys for internal rows.
type (
	TenantID int64
	EventID  int64
	UserID   int64
)

// ExternalID identifies an entity in the source platform (e.g. a Shopify order ID).
// External IDs are opaque strings; the source decides their shape.
type ExternalID string

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseTenantID(s string) (TenantID, error) {
	n, err := parseID(s, "tenant ID")
	return TenantID(n), err
}

func ParseEventID(s string) (EventID, error) {
	n, err := parseID(s, "event ID")
	return EventID(n), err
}

func ParseUserID(s string) (UserID, error) {
	n, err := parseID(s, "user ID")
	return UserID(n), err
}

func parseID(s, label string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return n, nil
}

// Valid reports whether the ID is a usable positive identifier.

func (id TenantID) Valid() bool { return id > 0 }
func (id EventID) Valid() bool  { return id > 0 }
func (id UserID) Valid() bool   { return id > 0 }

// String methods - for logging and key construction.

func (id TenantID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id EventID) String() string  { return strconv.FormatInt(int64(id), 10) }
func (id UserID) String() string   { return strconv.FormatInt(int64(id), 10) }

func (id ExternalID) String() string { return string(id) }
