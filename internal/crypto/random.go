package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenBytes is the entropy of generated tokens.
const TokenBytes = 32

// GenerateSecureToken returns TokenBytes of crypto/rand output encoded as
// unpadded base64url, safe in query strings, cookies and Firestore document
// IDs. Used for state tokens and session IDs.
func GenerateSecureToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
