package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	service := NewService([]byte("test-secret"))
	service.RegisterCredentials(TestBidderKey, TestBidderSecret, RolePembeli)
	service.RegisterCredentials(TestAdminKey, TestAdminSecret, RoleAdmin)

	token, err := service.GenerateToken(Credentials{APIKey: TestBidderKey, APISecret: TestBidderSecret})
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	claims, err := service.ValidateToken(token.Token)
	require.NoError(t, err)
	require.Equal(t, TestBidderKey, claims.BidderID)
	require.Equal(t, RolePembeli, claims.Role)

	admin, err := service.GenerateToken(Credentials{APIKey: TestAdminKey, APISecret: TestAdminSecret})
	require.NoError(t, err)
	adminClaims, err := service.ValidateToken(admin.Token)
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, adminClaims.Role)
}

func TestGenerateToken_InvalidCredentials(t *testing.T) {
	service := NewService([]byte("test-secret"))
	service.RegisterCredentials(TestBidderKey, TestBidderSecret, RolePembeli)

	tests := []struct {
		name  string
		creds Credentials
	}{
		{name: "unknown_key", creds: Credentials{APIKey: "nope", APISecret: TestBidderSecret}},
		{name: "wrong_secret", creds: Credentials{APIKey: TestBidderKey, APISecret: "nope"}},
		{name: "empty", creds: Credentials{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.GenerateToken(tt.creds)
			require.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewService([]byte("secret-a"))
	issuer.RegisterCredentials(TestBidderKey, TestBidderSecret, RolePembeli)

	token, err := issuer.GenerateToken(Credentials{APIKey: TestBidderKey, APISecret: TestBidderSecret})
	require.NoError(t, err)

	verifier := NewService([]byte("secret-b"))
	_, err = verifier.ValidateToken(token.Token)
	require.Error(t, err)
}
