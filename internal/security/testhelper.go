package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"time"
)

// NewTestTokenProvider returns an ES256 TokenProvider over a key generated for this call.
// Tokens it signs verify only with the same provider. For tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, key.Public(), "test-issuer", "test-audience", 8*time.Hour), nil
}
