package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, d time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(d, "peercast-test")
	require.NoError(t, err)
	return m
}

func TestPublishTokenRoundTrip(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, exp, err := m.IssuePublishToken("s-1", "alice")
	require.NoError(t, err)
	assert.Greater(t, exp, time.Now().Unix())

	claims, err := m.VerifyPublishToken(token, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", claims.SessionID)
	assert.Equal(t, "alice", claims.Owner)
	assert.Equal(t, TokenTypePublish, claims.Type)
}

func TestVerifyPublishTokenWrongSession(t *testing.T) {
	m := newTestManager(t, time.Hour)
	token, _, err := m.IssuePublishToken("s-1", "")
	require.NoError(t, err)

	_, err = m.VerifyPublishToken(token, "s-2")
	assert.ErrorIs(t, err, ErrWrongSession)
}

func TestValidateTokenRejectsGarbageAndForeignKeys(t *testing.T) {
	m := newTestManager(t, time.Hour)
	other := newTestManager(t, time.Hour)

	_, err := m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, _, err := other.IssuePublishToken("s-1", "")
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	m := newTestManager(t, -time.Minute)
	token, _, err := m.IssuePublishToken("s-1", "")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRevokeSession(t *testing.T) {
	m := newTestManager(t, time.Hour)
	token, _, err := m.IssuePublishToken("s-1", "")
	require.NoError(t, err)

	m.RevokeSession("s-1")
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrRevokedToken)
	assert.Equal(t, 0, m.CleanupExpiredRevocations())
}
