// Package tokens issues and verifies the admin API's JWTs.
package tokens

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shopstream/internal/auth/models"
	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
)

const (
	// TypeAccess marks short-lived tokens presented on every request.
	TypeAccess = "access"
	// TypeRefresh marks long-lived tokens exchanged for new pairs.
	TypeRefresh = "refresh"

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the JWT payload. TenantID of zero means platform-wide access.
type Claims struct {
	TenantID  domain.TenantID `json:"tenant_id"`
	Role      models.Role     `json:"role"`
	TokenType string          `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair is an issued access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Manager signs and verifies token pairs with a shared HMAC secret.
type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTLs overrides the access and refresh lifetimes.
func WithTTLs(access, refresh time.Duration) Option {
	return func(m *Manager) {
		m.accessTTL = access
		m.refreshTTL = refresh
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a token manager.
func NewManager(secret []byte, issuer string, opts ...Option) *Manager {
	m := &Manager{
		secret:     secret,
		issuer:     issuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssuePair signs a fresh access/refresh pair for the user.
func (m *Manager) IssuePair(u *models.User) (Pair, error) {
	access, err := m.sign(u, TypeAccess, m.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.sign(u, TypeRefresh, m.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

func (m *Manager) sign(u *models.User, tokenType string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		TenantID:  u.TenantID,
		Role:      u.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(int64(u.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// VerifyAccess parses an access token and returns its claims.
func (m *Manager) VerifyAccess(token string) (*Claims, error) {
	return m.verify(token, TypeAccess)
}

// VerifyRefresh parses a refresh token and returns its claims.
func (m *Manager) VerifyRefresh(token string) (*Claims, error) {
	return m.verify(token, TypeRefresh)
}

func (m *Manager) verify(token, wantType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeTokenExpired, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeInvalidToken, "invalid token")
	}
	if !parsed.Valid || claims.TokenType != wantType {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "invalid token")
	}
	return claims, nil
}

// UserID extracts the subject as a user ID.
func (c *Claims) UserID() (domain.UserID, error) {
	return domain.ParseUserID(c.Subject)
}
