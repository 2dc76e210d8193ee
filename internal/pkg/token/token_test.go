package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager("access-secret", "refresh-secret", time.Minute, time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager()

	signed, err := m.SignAccess(7)
	require.NoError(t, err)

	userID, err := m.VerifyAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, uint(7), userID)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	m := newTestManager()

	signed, err := m.SignRefresh(7)
	require.NoError(t, err)

	userID, err := m.VerifyRefresh(signed)
	require.NoError(t, err)
	assert.Equal(t, uint(7), userID)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	m := newTestManager()

	access, err := m.SignAccess(7)
	require.NoError(t, err)
	refresh, err := m.SignRefresh(7)
	require.NoError(t, err)

	_, err = m.VerifyRefresh(access)
	assert.Error(t, err, "an access token must not verify as a refresh token")
	_, err = m.VerifyAccess(refresh)
	assert.Error(t, err, "a refresh token must not verify as an access token")
}

func TestExpiredTokenRejected(t *testing.T) {
	m := NewManager("access-secret", "refresh-secret", -time.Minute, -time.Minute)

	signed, err := m.SignRefresh(7)
	require.NoError(t, err)

	_, err = m.VerifyRefresh(signed)
	assert.Error(t, err)
}

func TestWrongSecretRejected(t *testing.T) {
	signed, err := newTestManager().SignRefresh(7)
	require.NoError(t, err)

	other := NewManager("access-secret", "different-secret", time.Minute, time.Hour)
	_, err = other.VerifyRefresh(signed)
	assert.Error(t, err)
}

func TestGarbageTokenRejected(t *testing.T) {
	_, err := newTestManager().VerifyAccess("definitely.not.ajwt")
	assert.Error(t, err)
}

func TestRefreshTokensAreUniquePerIssue(t *testing.T) {
	m := newTestManager()

	first, err := m.SignRefresh(7)
	require.NoError(t, err)
	second, err := m.SignRefresh(7)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two refresh tokens minted back to back must differ")
}
