package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

var privateParsers = map[string]func([]byte) (crypto.Signer, error){
	"RSA PRIVATE KEY": func(der []byte) (crypto.Signer, error) { return x509.ParsePKCS1PrivateKey(der) },
	"EC PRIVATE KEY":  func(der []byte) (crypto.Signer, error) { return x509.ParseECPrivateKey(der) },
	"PRIVATE KEY": func(der []byte) (crypto.Signer, error) {
		key, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	},
}

var publicParsers = map[string]func([]byte) (crypto.PublicKey, error){
	"RSA PUBLIC KEY": func(der []byte) (crypto.PublicKey, error) { return x509.ParsePKCS1PublicKey(der) },
	"PUBLIC KEY":     func(der []byte) (crypto.PublicKey, error) { return x509.ParsePKIXPublicKey(der) },
}

// LoadPEM accepts either inline PEM or a file path. Inline PEM from a .env file
// usually carries literal "\n" sequences; those are expanded.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, ErrInvalidKey
	case strings.HasPrefix(s, "-----BEGIN"):
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	default:
		return os.ReadFile(s)
	}
}

// ParsePrivateKey reads an RSA or ECDSA signing key in PKCS#1, SEC 1 or PKCS#8 form.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	block, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	parse, ok := privateParsers[block.Type]
	if !ok {
		return nil, ErrInvalidKey
	}
	return parse(block.Bytes)
}

// ParsePublicKey reads an RSA or ECDSA verification key in PKCS#1 or PKIX form.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	block, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	parse, ok := publicParsers[block.Type]
	if !ok {
		return nil, ErrInvalidKey
	}
	return parse(block.Bytes)
}

// LoadKeyPair returns the session signing key and the key tokens are checked against.
// An empty publicSpec means the signer's own public half is used. The pair must
// share one supported algorithm.
func LoadKeyPair(privateSpec, publicSpec string) (crypto.Signer, crypto.PublicKey, error) {
	signer, err := ParsePrivateKey(privateSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("signing key: %w", err)
	}
	if strings.TrimSpace(publicSpec) == "" {
		if KeyAlg(signer.Public()) == "" {
			return nil, nil, ErrInvalidKey
		}
		return signer, signer.Public(), nil
	}
	pub, err := ParsePublicKey(publicSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("verification key: %w", err)
	}
	if alg := KeyAlg(pub); alg == "" || alg != KeyAlg(signer.Public()) {
		return nil, nil, ErrInvalidKey
	}
	return signer, pub, nil
}

// KeyAlg names the JWS algorithm for pub: RS256 for RSA, ES256 for ECDSA on P-256.
// Any other key yields "".
func KeyAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return "ES256"
		}
	}
	return ""
}

func decodePEM(s string) (*pem.Block, error) {
	raw, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	if block, _ := pem.Decode(raw); block != nil {
		return block, nil
	}
	return nil, ErrInvalidKey
}
