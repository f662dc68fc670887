// Package store persists operator accounts.
package store

import (
	"context"

	"shopstream/internal/auth/models"
	"shopstream/pkg/domain"
)

// Store defines operator account persistence. Implementations must be safe
// for concurrent use.
type Store interface {
	// Create inserts an account and assigns its ID; sentinel.ErrDuplicate
	// when the email is already taken.
	Create(ctx context.Context, u *models.User) error

	// FindByID retrieves an account; sentinel.ErrNotFound when absent.
	FindByID(ctx context.Context, id domain.UserID) (*models.User, error)

	// FindByEmail retrieves an account by lowercase email.
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}
