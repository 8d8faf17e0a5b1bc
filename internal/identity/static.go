package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// StaticKeyProvider verifies every token against one fixed RSA public key.
// Used for single-issuer deployments where jwks_url is not configured.
type StaticKeyProvider struct {
	key *rsa.PublicKey
}

// NewStaticKeyProvider parses a PEM-encoded RSA or PKIX public key.
func NewStaticKeyProvider(pemBytes []byte) (*StaticKeyProvider, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("static public key: no PEM block found")
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return &StaticKeyProvider{key: key}, nil
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("static public key: %w", err)
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("static public key: not an RSA key")
	}
	return &StaticKeyProvider{key: rsaKey}, nil
}

// Keyfunc implements KeyProvider.
func (p *StaticKeyProvider) Keyfunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return p.key, nil
}
