package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"shopstream/internal/auth/models"
	"shopstream/internal/sentinel"
	"shopstream/pkg/domain"
)

// InMemory keeps operator accounts in process memory.
type InMemory struct {
	mu       sync.RWMutex
	nextID   domain.UserID
	users    map[domain.UserID]*models.User
	emailIdx map[string]domain.UserID
}

// NewInMemory creates an in-memory account store.
func NewInMemory() *InMemory {
	return &InMemory{
		nextID:   1,
		users:    make(map[domain.UserID]*models.User),
		emailIdx: make(map[string]domain.UserID),
	}
}

func (s *InMemory) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, exists := s.emailIdx[email]; exists {
		return fmt.Errorf("email already registered: %w", sentinel.ErrDuplicate)
	}
	u.ID = s.nextID
	s.nextID++
	stored := *u
	s.users[u.ID] = &stored
	s.emailIdx[email] = u.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIdx[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *s.users[id]
	return &c, nil
}
