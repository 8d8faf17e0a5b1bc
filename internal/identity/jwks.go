package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWKSProvider resolves verification keys from a remote JSON Web Key Set,
// refreshed on a schedule (spec.md §4.1). It implements both KeyProvider
// (for the Identity Gate) and scheduler.Job (for periodic refresh).
type JWKSProvider struct {
	url    string
	client *http.Client
	logger *slog.Logger

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewJWKSProvider creates a provider with an empty keyset. Call Run once
// before serving traffic so Keyfunc has keys to select from; the scheduler
// then calls Run periodically to pick up rotation.
func NewJWKSProvider(url string, logger *slog.Logger) *JWKSProvider {
	return &JWKSProvider{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		keys:   make(map[string]*rsa.PublicKey),
	}
}

// Name implements scheduler.Job.
func (p *JWKSProvider) Name() string { return "jwks-refresh" }

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Run fetches and parses the keyset, replacing the cached keys on success.
// A fetch failure leaves the previously cached keys in place so that a
// transient outage does not take down verification (spec.md §4.1).
func (p *JWKSProvider) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("building jwks request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading jwks response: %w", err)
	}

	var set jwkSet
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("decoding jwks response: %w", err)
	}

	next := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k.N, k.E)
		if err != nil {
			p.logger.Warn("skipping malformed jwks entry", "kid", k.Kid, "error", err)
			continue
		}
		next[k.Kid] = pub
	}

	if len(next) == 0 {
		return fmt.Errorf("jwks response contained no usable RSA keys")
	}

	p.mu.Lock()
	p.keys = next
	p.mu.Unlock()

	p.logger.Info("jwks refreshed", "key_count", len(next))
	return nil
}

// Keyfunc implements KeyProvider, selecting by the token's "kid" header.
func (p *JWKSProvider) Keyfunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token header missing kid")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id: %s", kid)
	}
	return key, nil
}

func rsaPublicKeyFromJWK(nEnc, eEnc string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nEnc)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eEnc)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
