package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeHeaderSecret(t *testing.T) {
	g, err := NewGuard("the-secret", false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/containers/start", nil)
	req.Header.Set("X-Runner-Secret", "the-secret")
	assert.True(t, g.Authorize(req))

	req2 := httptest.NewRequest(http.MethodPost, "/containers/start", nil)
	req2.Header.Set("X-Runner-Secret", "wrong-secret")
	assert.False(t, g.Authorize(req2))
}

func TestAuthorizeBearerToken(t *testing.T) {
	g, err := NewGuard("the-secret", false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws/pty", nil)
	req.Header.Set("Authorization", "Bearer the-secret")
	assert.True(t, g.Authorize(req))
}

func TestAuthorizeRejectsMissingCredential(t *testing.T) {
	g, err := NewGuard("the-secret", false)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/ws/pty", nil)
	assert.False(t, g.Authorize(req))
}

func TestNewGuardRejectsDevSecretInProduction(t *testing.T) {
	_, err := NewGuard("dev-shared-secret-change-me", true)
	assert.ErrorIs(t, err, ErrDevSecretInProduction)

	_, err = NewGuard("dev-shared-secret-change-me", false)
	assert.NoError(t, err)
}
