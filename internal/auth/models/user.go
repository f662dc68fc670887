// Package models defines operator accounts for the admin API.
package models

import (
	"net/mail"
	"strings"
	"time"

	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
)

// Role controls what an operator may do.
type Role string

const (
	// RoleAdmin manages tenants and operators.
	RoleAdmin Role = "admin"
	// RoleOperator inspects events and triggers reprocessing.
	RoleOperator Role = "operator"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleOperator
}

// User is an operator account. Operators are scoped to one tenant; the
// zero tenant means platform-wide access.
type User struct {
	ID           domain.UserID
	TenantID     domain.TenantID
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates an operator account with an already-hashed password.
func NewUser(tenantID domain.TenantID, email, passwordHash string, role Role, now time.Time) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, dErrors.NewWithDetails(dErrors.CodeValidation,
			"invalid email address", map[string]any{"field": "email"})
	}
	if passwordHash == "" {
		return nil, dErrors.NewWithDetails(dErrors.CodeValidation,
			"password hash must not be empty", map[string]any{"field": "password"})
	}
	if !role.Valid() {
		return nil, dErrors.NewWithDetails(dErrors.CodeValidation,
			"unknown role", map[string]any{"field": "role"})
	}
	return &User{
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// PlatformWide reports whether the account spans all tenants.
func (u *User) PlatformWide() bool {
	return u.TenantID == 0
}
