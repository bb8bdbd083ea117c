package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKey(t *testing.T) {
	assert.Empty(t, HashKey(""))
	h := HashKey("key-123")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashKey("key-123"))
	assert.NotEqual(t, h, HashKey("key-124"))
}

func TestDeriveSecret(t *testing.T) {
	s1, err := DeriveSecret("client-a", "shared")
	require.NoError(t, err)
	s2, err := DeriveSecret("client-a", "shared")
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	s3, err := DeriveSecret("client-b", "shared")
	require.NoError(t, err)
	assert.NotEqual(t, s1, s3)

	_, err = DeriveSecret("", "shared")
	assert.Error(t, err)
	_, err = DeriveSecret("client-a", "")
	assert.Error(t, err)
}

func TestSessionsRoundTrip(t *testing.T) {
	s, err := NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := s.IssueToken()
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)
}

func TestSessionsRejectsBadTokens(t *testing.T) {
	s, err := NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = s.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewSessions("different-secret", time.Hour)
	require.NoError(t, err)
	token, err := other.IssueToken()
	require.NoError(t, err)
	_, err = s.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewSessionsRequiresSecret(t *testing.T) {
	_, err := NewSessions("", time.Hour)
	assert.Error(t, err)
}
