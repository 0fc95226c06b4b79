package authn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyToken(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)

	tok, err := iss.IssueToken("user-1", "alice@example.com")
	require.NoError(t, err)

	claims, err := iss.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	iss := NewIssuer("secret-a", time.Hour)
	tok, err := iss.IssueToken("user-1", "alice@example.com")
	require.NoError(t, err)

	other := NewIssuer("secret-b", time.Hour)
	_, err = other.VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	iss := NewIssuer("secret", -time.Minute)
	tok, err := iss.IssueToken("user-1", "alice@example.com")
	require.NoError(t, err)

	_, err = iss.VerifyToken(tok)
	assert.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("Password123!")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "Password123!"))
	assert.False(t, CheckPassword(hash, "wrong-password"))
}
