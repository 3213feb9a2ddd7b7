package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateParse_Tenant(t *testing.T) {
	tok, err := Generate("secreto", "erp-1", "tenant-a", "operator", "dte-sii", 5)
	require.NoError(t, err)

	claims, err := Parse("secreto", tok)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, "erp-1", claims.Subject)
	assert.Equal(t, "operator", claims.Role)
}

func TestParse_FirmaIncorrecta(t *testing.T) {
	tok, err := Generate("secreto", "erp-1", "tenant-a", "", "dte-sii", 5)
	require.NoError(t, err)

	_, err = Parse("otro", tok)
	assert.Error(t, err)
}

func TestParse_SinTenant(t *testing.T) {
	tok, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, Claims{
		RegisteredClaims: gojwt.RegisteredClaims{ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString([]byte("secreto"))
	require.NoError(t, err)

	_, err = Parse("secreto", tok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id")
}

func TestGenerate_SinSecret(t *testing.T) {
	_, err := Generate("", "erp-1", "tenant-a", "", "dte-sii", 5)
	assert.Error(t, err)
}
