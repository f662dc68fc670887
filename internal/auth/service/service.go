// Package service implements operator authentication for the admin API.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shopstream/internal/auth/models"
	"shopstream/internal/auth/store"
	"shopstream/internal/auth/tokens"
	"shopstream/internal/sentinel"
	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
	"shopstream/pkg/secrets"
)

// Auth handles operator registration, login, and token refresh.
type Auth struct {
	users  store.Store
	tokens *tokens.Manager
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Auth service.
type Option func(*Auth)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Auth) { a.now = now }
}

// New creates an Auth service.
func New(users store.Store, tm *tokens.Manager, logger *slog.Logger, opts ...Option) *Auth {
	a := &Auth{users: users, tokens: tm, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register creates an operator account with a bcrypt-hashed password.
func (a *Auth) Register(ctx context.Context, tenantID domain.TenantID, email, password string, role models.Role) (*models.User, error) {
	hash, err := secrets.Hash(password)
	if err != nil {
		return nil, err
	}
	user, err := models.NewUser(tenantID, email, hash, role, a.now())
	if err != nil {
		return nil, err
	}
	if err := a.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return nil, dErrors.New(dErrors.CodeConflict, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	a.logger.InfoContext(ctx, "operator registered",
		slog.Int64("user_id", int64(user.ID)),
		slog.String("role", string(user.Role)))
	return user, nil
}

// Login verifies credentials and issues a token pair. The error is the same
// whether the account is missing or the password wrong.
func (a *Auth) Login(ctx context.Context, email, password string) (tokens.Pair, error) {
	user, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return tokens.Pair{}, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return tokens.Pair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	if err := secrets.Verify(password, user.PasswordHash); err != nil {
		a.logger.WarnContext(ctx, "login rejected",
			slog.Int64("user_id", int64(user.ID)))
		return tokens.Pair{}, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	pair, err := a.tokens.IssuePair(user)
	if err != nil {
		return tokens.Pair{}, err
	}
	a.logger.InfoContext(ctx, "operator logged in",
		slog.Int64("user_id", int64(user.ID)))
	return pair, nil
}

// Refresh exchanges a refresh token for a fresh pair, re-reading the
// account so revoked operators lose access at rotation time.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (tokens.Pair, error) {
	claims, err := a.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return tokens.Pair{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return tokens.Pair{}, dErrors.New(dErrors.CodeInvalidToken, "invalid token subject")
	}
	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return tokens.Pair{}, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
		}
		return tokens.Pair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	return a.tokens.IssuePair(user)
}
