package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Each call generates a unique token
	token2, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, decoded, TokenBytes)
}

func TestGenerateSecureTokenIsURLSafe(t *testing.T) {
	for range 50 {
		token, err := GenerateSecureToken()
		require.NoError(t, err)
		assert.False(t, strings.ContainsAny(token, "+/="), "token %q is not url safe", token)
	}
}
