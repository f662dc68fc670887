// Package service implements the tenant registry: onboarding, domain
// resolution, soft lifecycle, and the isolation check every tenant-scoped
// operation must pass before touching data.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shopstream/internal/sentinel"
	"shopstream/internal/tenant/models"
	"shopstream/internal/tenant/store"
	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
	"shopstream/pkg/secrets"
)

// Cipher is the credential capability: symmetric encrypt/decrypt of tenant
// access tokens.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Registry resolves tenants and owns their lifecycle.
type Registry struct {
	store  store.Store
	cipher Cipher
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Registry.
type Option func(*Registry)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a tenant registry.
func New(st store.Store, cipher Cipher, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  st,
		cipher: cipher,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register onboards a tenant. The access token is encrypted before it ever
// reaches the store; a missing webhook secret is generated.
func (r *Registry) Register(ctx context.Context, name, shopDomain, accessToken, webhookSecret string) (*models.Tenant, error) {
	if accessToken == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "access token cannot be empty")
	}
	encrypted, err := r.cipher.Encrypt(accessToken)
	if err != nil {
		return nil, err
	}
	if webhookSecret == "" {
		webhookSecret, err = secrets.Generate()
		if err != nil {
			return nil, err
		}
	}

	tenant, err := models.NewTenant(name, shopDomain, encrypted, webhookSecret, r.now())
	if err != nil {
		return nil, err
	}
	if err := r.store.Create(ctx, tenant); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return nil, dErrors.NewWithDetails(dErrors.CodeConflict,
				"tenant with domain '"+shopDomain+"' already exists",
				map[string]any{"domain": shopDomain})
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not create tenant")
	}

	r.logger.Info("tenant registered",
		"tenant_id", tenant.ID,
		"domain", tenant.Domain,
	)
	return tenant, nil
}

// Get retrieves a tenant by ID.
func (r *Registry) Get(ctx context.Context, tenantID domain.TenantID) (*models.Tenant, error) {
	t, err := r.store.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewWithDetails(dErrors.CodeNotFound, "tenant not found",
				map[string]any{"tenant_id": tenantID})
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load tenant")
	}
	return t, nil
}

// ResolveDomain maps an inbound external domain identifier to its tenant.
func (r *Registry) ResolveDomain(ctx context.Context, shopDomain string) (*models.Tenant, error) {
	t, err := r.store.FindByDomain(ctx, shopDomain)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewWithDetails(dErrors.CodeNotFound, "tenant not found",
				map[string]any{"domain": shopDomain})
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not resolve tenant")
	}
	return t, nil
}

// ActiveTenants lists tenants eligible for processing and reconciliation.
func (r *Registry) ActiveTenants(ctx context.Context) ([]*models.Tenant, error) {
	tenants, err := r.store.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list tenants")
	}
	return tenants, nil
}

// DecryptedAccessToken returns the tenant's credential just-in-time.
// The plaintext must never be logged or persisted by callers.
func (r *Registry) DecryptedAccessToken(ctx context.Context, tenantID domain.TenantID) (string, error) {
	t, err := r.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return r.cipher.Decrypt(t.AccessToken)
}

// Suspend soft-disables a tenant; its data is retained.
func (r *Registry) Suspend(ctx context.Context, tenantID domain.TenantID) (*models.Tenant, error) {
	return r.transition(ctx, tenantID, (*models.Tenant).Suspend)
}

// Reactivate re-enables a suspended tenant.
func (r *Registry) Reactivate(ctx context.Context, tenantID domain.TenantID) (*models.Tenant, error) {
	return r.transition(ctx, tenantID, (*models.Tenant).Reactivate)
}

func (r *Registry) transition(ctx context.Context, tenantID domain.TenantID, fn func(*models.Tenant, time.Time) error) (*models.Tenant, error) {
	t, err := r.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := fn(t, r.now()); err != nil {
		return nil, err
	}
	if err := r.store.Update(ctx, t); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not update tenant")
	}
	r.logger.Info("tenant status changed",
		"tenant_id", t.ID,
		"status", t.Status,
	)
	return t, nil
}

// UpdateLastSynced records a successful synchronization point for the tenant.
func (r *Registry) UpdateLastSynced(ctx context.Context, tenantID domain.TenantID, syncedAt time.Time) error {
	if err := r.store.TouchLastSynced(ctx, tenantID, syncedAt); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.NewWithDetails(dErrors.CodeNotFound, "tenant not found",
				map[string]any{"tenant_id": tenantID})
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not update sync status")
	}
	return nil
}

// Authorize enforces tenant isolation: the requesting tenant must match the
// tenant that owns the record. Violations are security-critical and are
// surfaced loudly, never silently corrected.
func (r *Registry) Authorize(requestTenant, recordTenant domain.TenantID) error {
	if requestTenant == recordTenant {
		return nil
	}
	r.logger.Error("tenant isolation violation",
		"requested_tenant_id", requestTenant,
		"actual_tenant_id", recordTenant,
	)
	return dErrors.NewWithDetails(dErrors.CodeTenantIsolation,
		"access denied: tenant isolation violation",
		map[string]any{
			"requested_tenant_id": requestTenant,
			"actual_tenant_id":    recordTenant,
		})
}
