package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"shopstream/internal/sentinel"
	"shopstream/internal/tenant/models"
	"shopstream/pkg/domain"
)

// InMemory stores tenants in memory for tests and the demo environment.
type InMemory struct {
	mu        sync.RWMutex
	nextID    domain.TenantID
	tenants   map[domain.TenantID]*models.Tenant
	domainIdx map[string]domain.TenantID
}

// NewInMemory creates an in-memory tenant store.
func NewInMemory() *InMemory {
	return &InMemory{
		nextID:    1,
		tenants:   make(map[domain.TenantID]*models.Tenant),
		domainIdx: make(map[string]domain.TenantID),
	}
}

func (s *InMemory) Create(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lower := strings.ToLower(t.Domain)
	if _, exists := s.domainIdx[lower]; exists {
		return fmt.Errorf("tenant domain must be unique: %w", sentinel.ErrDuplicate)
	}
	t.ID = s.nextID
	s.nextID++
	s.tenants[t.ID] = cloneTenant(t)
	s.domainIdx[lower] = t.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID domain.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tenants[tenantID]; ok {
		return cloneTenant(t), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByDomain(_ context.Context, shopDomain string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.domainIdx[strings.ToLower(shopDomain)]; ok {
		return cloneTenant(s.tenants[id]), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListActive(_ context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Tenant
	for _, t := range s.tenants {
		if t.IsActive() {
			out = append(out, cloneTenant(t))
		}
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.tenants[t.ID] = cloneTenant(t)
	return nil
}

func (s *InMemory) TouchLastSynced(_ context.Context, tenantID domain.TenantID, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return sentinel.ErrNotFound
	}
	ts := syncedAt
	t.LastSyncedAt = &ts
	t.UpdatedAt = syncedAt
	return nil
}

func cloneTenant(t *models.Tenant) *models.Tenant {
	c := *t
	if t.LastSyncedAt != nil {
		ts := *t.LastSyncedAt
		c.LastSyncedAt = &ts
	}
	return &c
}
