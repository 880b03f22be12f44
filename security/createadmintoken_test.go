package security

import (
	"encoding/base64"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "IxrAjDoa2FqElO7IhrSrUJELhUckePEPVpaePlS/Xaw="

func TestCreateAdminToken(t *testing.T) {
	token, err := CreateAdminToken(&AdminIdentity{
		Subject: "ops",
		Email:   "ops@example.com",
	}, testSecret, 3600)
	require.NoError(t, err)

	secretBytes, err := base64.StdEncoding.DecodeString(testSecret)
	require.NoError(t, err)

	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return secretBytes, nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "ops", claims["sub"])
	assert.Equal(t, "admin", claims["role"])
	assert.Equal(t, "sommerfest-tenants", claims["iss"])
}

func TestCreateAdminTokenBadSecret(t *testing.T) {
	_, err := CreateAdminToken(&AdminIdentity{Subject: "ops"}, "%%%not-base64%%%", 3600)
	assert.Error(t, err)
}
