package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maplisted/maplisted/internal/auth"
)

func newTestService() *auth.Service {
	return auth.NewService(auth.Config{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.maplisted.dev",
		Audience:   "maplisted-api",
	})
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	service := newTestService()

	token, expiresAt, err := service.GenerateAccessToken("usr_abc123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(auth.AccessTokenExpiry), expiresAt, 5*time.Second)

	userID, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_abc123", userID)
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	service := newTestService()

	_, err := service.ValidateAccessToken("not.a.token")
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestValidateAccessToken_WrongKey(t *testing.T) {
	service := newTestService()
	token, _, err := service.GenerateAccessToken("usr_abc123")
	require.NoError(t, err)

	other := auth.NewService(auth.Config{
		SigningKey: "a-different-signing-key",
		Issuer:     "https://api.maplisted.dev",
		Audience:   "maplisted-api",
	})

	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestValidateAccessToken_WrongAudience(t *testing.T) {
	service := newTestService()
	token, _, err := service.GenerateAccessToken("usr_abc123")
	require.NoError(t, err)

	other := auth.NewService(auth.Config{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.maplisted.dev",
		Audience:   "some-other-service",
	})

	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}
