package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidesk.org/internal/clinic"
)

func testTokens(t *testing.T, opts ...TokenOption) *Tokens {
	t.Helper()
	base := []TokenOption{WithIssuer("test")}
	tk, err := NewTokens("access-secret", "refresh-secret", append(base, opts...)...)
	require.NoError(t, err)
	return tk
}

func TestNewTokensRequiresSecrets(t *testing.T) {
	_, err := NewTokens("", "refresh")
	assert.Error(t, err)
	_, err = NewTokens("access", "")
	assert.Error(t, err)
	_, err = NewTokens("access", "refresh", WithAccessTTL(0))
	assert.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	tk := testTokens(t)

	pair, err := tk.Issue("u-1", clinic.RoleDoctor)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	claims, err := tk.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "doctor", claims.Role)
	assert.Equal(t, "access", claims.TokenType)

	rclaims, err := tk.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh", rclaims.TokenType)
}

func TestTokenFamiliesAreNotInterchangeable(t *testing.T) {
	tk := testTokens(t)
	pair, err := tk.Issue("u-1", clinic.RolePatient)
	require.NoError(t, err)

	// A refresh token never passes as an access token and vice versa: the
	// secrets differ, and even with a shared secret the token_type claim
	// would reject it.
	_, err = tk.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = tk.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	tk := testTokens(t)
	other, err := NewTokens("other-access", "other-refresh", WithIssuer("test"))
	require.NoError(t, err)

	pair, err := other.Issue("u-1", clinic.RolePatient)
	require.NoError(t, err)
	_, err = tk.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	tk := testTokens(t)
	other, err := NewTokens("access-secret", "refresh-secret", WithIssuer("someone-else"))
	require.NoError(t, err)

	pair, err := other.Issue("u-1", clinic.RolePatient)
	require.NoError(t, err)
	_, err = tk.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiryBoundary(t *testing.T) {
	issued := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := issued
	tk := testTokens(t, WithAccessTTL(time.Hour), WithClock(func() time.Time { return clock }))

	pair, err := tk.Issue("u-1", clinic.RolePatient)
	require.NoError(t, err)

	// One second before expiry the token is alive.
	clock = issued.Add(time.Hour - time.Second)
	_, err = tk.VerifyAccess(pair.AccessToken)
	assert.NoError(t, err)

	// At the expiry instant it is already dead.
	clock = issued.Add(time.Hour)
	_, err = tk.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	tk := testTokens(t)
	for _, tok := range []string{"", "  ", "not.a.jwt", "aaaa.bbbb.cccc"} {
		_, err := tk.VerifyAccess(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestIssueAccessOnly(t *testing.T) {
	tk := testTokens(t, WithAccessTTL(90*time.Second))
	access, expiresIn, err := tk.IssueAccess("u-1", clinic.RoleOperator)
	require.NoError(t, err)
	assert.Equal(t, int64(90), expiresIn)

	claims, err := tk.VerifyAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Role)
}
