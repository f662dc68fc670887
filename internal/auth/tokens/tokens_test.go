package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopstream/internal/auth/models"
	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
	"shopstream/pkg/testutil"
)

func testUser() *models.User {
	return &models.User{
		ID:       42,
		TenantID: 3,
		Email:    "op@example.com",
		Role:     models.RoleOperator,
	}
}

func newManager(opts ...Option) *Manager {
	base := []Option{WithClock(testutil.Clock())}
	return NewManager([]byte("test-signing-key"), "shopstream", append(base, opts...)...)
}

func TestIssuePairAndVerify(t *testing.T) {
	m := newManager()

	pair, err := m.IssuePair(testUser())
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	claims, err := m.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.TenantID(3), claims.TenantID)
	assert.Equal(t, models.RoleOperator, claims.Role)
	assert.Equal(t, TypeAccess, claims.TokenType)

	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, domain.UserID(42), userID)

	refreshClaims, err := m.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, refreshClaims.TokenType)
}

func TestVerify_RejectsWrongTokenType(t *testing.T) {
	m := newManager()

	pair, err := m.IssuePair(testUser())
	require.NoError(t, err)

	_, err = m.VerifyAccess(pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))

	_, err = m.VerifyRefresh(pair.AccessToken)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func TestVerify_Expiry(t *testing.T) {
	issued := testutil.FixedTime
	m := NewManager([]byte("test-signing-key"), "shopstream",
		WithClock(func() time.Time { return issued }))

	pair, err := m.IssuePair(testUser())
	require.NoError(t, err)

	later := NewManager([]byte("test-signing-key"), "shopstream",
		WithClock(func() time.Time { return issued.Add(16 * time.Minute) }))

	_, err = later.VerifyAccess(pair.AccessToken)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenExpired))

	// The refresh token outlives the access token.
	_, err = later.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
}

func TestVerify_WrongSecret(t *testing.T) {
	m := newManager()
	pair, err := m.IssuePair(testUser())
	require.NoError(t, err)

	other := NewManager([]byte("different-key"), "shopstream", WithClock(testutil.Clock()))
	_, err = other.VerifyAccess(pair.AccessToken)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func TestVerify_WrongIssuer(t *testing.T) {
	m := NewManager([]byte("test-signing-key"), "other-service", WithClock(testutil.Clock()))
	pair, err := m.IssuePair(testUser())
	require.NoError(t, err)

	_, err = newManager().VerifyAccess(pair.AccessToken)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func TestVerify_Garbage(t *testing.T) {
	_, err := newManager().VerifyAccess("not.a.token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func TestWithTTLs(t *testing.T) {
	m := newManager(WithTTLs(time.Minute, time.Hour))
	pair, err := m.IssuePair(testUser())
	require.NoError(t, err)
	assert.Equal(t, int64(60), pair.ExpiresIn)
}
