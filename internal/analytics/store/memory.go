package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shopstream/internal/analytics/models"
	"shopstream/internal/sentinel"
	"shopstream/pkg/domain"
)

type entityKey struct {
	tenantID   domain.TenantID
	externalID domain.ExternalID
}

// InMemory keeps the projection in process memory.
type InMemory struct {
	mu        sync.RWMutex
	nextID    int64
	orders    map[entityKey]*models.Order
	customers map[entityKey]*models.Customer
	products  map[entityKey]*models.Product
}

// NewInMemory creates an in-memory projection store.
func NewInMemory() *InMemory {
	return &InMemory{
		nextID:    1,
		orders:    make(map[entityKey]*models.Order),
		customers: make(map[entityKey]*models.Customer),
		products:  make(map[entityKey]*models.Product),
	}
}

func (s *InMemory) UpsertOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entityKey{o.TenantID, o.ExternalID}
	existing, ok := s.orders[key]
	if !ok {
		stored := *o
		stored.ID = s.nextID
		s.nextID++
		s.orders[key] = &stored
		o.ID = stored.ID
		return nil
	}
	if existing.LastSequence > o.LastSequence {
		return staleSequence(existing.LastSequence, o.LastSequence)
	}
	updated := *o
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	s.orders[key] = &updated
	o.ID = existing.ID
	return nil
}

func (s *InMemory) GetOrder(_ context.Context, tenantID domain.TenantID, externalID domain.ExternalID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[entityKey{tenantID, externalID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *o
	return &c, nil
}

func (s *InMemory) UpsertCustomer(_ context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entityKey{c.TenantID, c.ExternalID}
	existing, ok := s.customers[key]
	if !ok {
		stored := *c
		stored.ID = s.nextID
		s.nextID++
		s.customers[key] = &stored
		c.ID = stored.ID
		return nil
	}
	if existing.LastSequence > c.LastSequence {
		return staleSequence(existing.LastSequence, c.LastSequence)
	}
	updated := *c
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.OrdersCount = existing.OrdersCount
	updated.TotalSpentCents = existing.TotalSpentCents
	s.customers[key] = &updated
	c.ID = existing.ID
	return nil
}

func (s *InMemory) GetCustomer(_ context.Context, tenantID domain.TenantID, externalID domain.ExternalID) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[entityKey{tenantID, externalID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cc := *c
	return &cc, nil
}

func (s *InMemory) DeleteCustomer(_ context.Context, tenantID domain.TenantID, externalID domain.ExternalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.customers, entityKey{tenantID, externalID})
	return nil
}

func (s *InMemory) AddCustomerOrder(_ context.Context, tenantID domain.TenantID, externalID domain.ExternalID, totalCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entityKey{tenantID, externalID}
	c, ok := s.customers[key]
	if !ok {
		now := time.Now()
		c = &models.Customer{
			ID:         s.nextID,
			TenantID:   tenantID,
			ExternalID: externalID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.nextID++
		s.customers[key] = c
	}
	c.OrdersCount++
	c.TotalSpentCents += totalCents
	return nil
}

func (s *InMemory) UpsertProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entityKey{p.TenantID, p.ExternalID}
	existing, ok := s.products[key]
	if !ok {
		stored := *p
		stored.ID = s.nextID
		s.nextID++
		s.products[key] = &stored
		p.ID = stored.ID
		return nil
	}
	if existing.LastSequence > p.LastSequence {
		return staleSequence(existing.LastSequence, p.LastSequence)
	}
	updated := *p
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	s.products[key] = &updated
	p.ID = existing.ID
	return nil
}

func (s *InMemory) GetProduct(_ context.Context, tenantID domain.TenantID, externalID domain.ExternalID) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[entityKey{tenantID, externalID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	pc := *p
	return &pc, nil
}

func (s *InMemory) DeleteProduct(_ context.Context, tenantID domain.TenantID, externalID domain.ExternalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, entityKey{tenantID, externalID})
	return nil
}

func staleSequence(have, got int64) error {
	return fmt.Errorf("row at sequence %d, event at sequence %d: %w", have, got, sentinel.ErrConflict)
}
