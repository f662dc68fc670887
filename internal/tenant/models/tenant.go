package models

import (
	"regexp"
	"time"

	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
)

// TenantStatus is a soft lifecycle status; tenants are never hard-deleted.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

var domainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*\.myshopify\.com$`)

// Tenant is the isolation boundary. Every tenant-scoped entity carries
// exactly one tenant ID, immutable after creation. AccessToken holds only
// ciphertext; decryption happens just-in-time and the plaintext is never
// persisted or logged.
type Tenant struct {
	ID            domain.TenantID
	Name          string
	Domain        string
	AccessToken   string // encrypted at rest
	WebhookSecret string
	Status        TenantStatus
	LastSyncedAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// Suspend transitions the tenant to suspended status.
// Returns an error if the tenant is already suspended.
func (t *Tenant) Suspend(now time.Time) error {
	if !t.IsActive() {
		return dErrors.New(dErrors.CodeInvariant, "tenant is already suspended")
	}
	t.Status = TenantStatusSuspended
	t.UpdatedAt = now
	return nil
}

// Reactivate transitions the tenant back to active status.
// Returns an error if the tenant is already active.
func (t *Tenant) Reactivate(now time.Time) error {
	if t.IsActive() {
		return dErrors.New(dErrors.CodeInvariant, "tenant is already active")
	}
	t.Status = TenantStatusActive
	t.UpdatedAt = now
	return nil
}

// NewTenant validates identity fields and returns an active tenant.
// The access token must already be encrypted by the caller.
func NewTenant(name, shopDomain, encryptedToken, webhookSecret string, now time.Time) (*Tenant, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant name cannot be empty")
	}
	if len(name) > 255 {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant name must be 255 characters or less")
	}
	if !ValidDomain(shopDomain) {
		return nil, dErrors.NewWithDetails(dErrors.CodeValidation, "invalid shop domain format",
			map[string]any{"domain": shopDomain})
	}
	if encryptedToken == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "access token cannot be empty")
	}
	return &Tenant{
		Name:          name,
		Domain:        shopDomain,
		AccessToken:   encryptedToken,
		WebhookSecret: webhookSecret,
		Status:        TenantStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ValidDomain reports whether the external domain identifier has the shape
// the source platform issues.
func ValidDomain(shopDomain string) bool {
	return domainPattern.MatchString(shopDomain)
}
