package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// algorithms maps the names a token key endpoint may announce to JWT
// signing method names.
var algorithms = map[string]string{
	"HS256": "HS256", "SHA256WITHHMAC": "HS256",
	"HS384": "HS384", "SHA384WITHHMAC": "HS384",
	"HS512": "HS512", "SHA512WITHHMAC": "HS512",
	"ES256": "ES256", "SHA256WITHECDSA": "ES256",
	"ES384": "ES384", "SHA384WITHECDSA": "ES384",
	"ES512": "ES512", "SHA512WITHECDSA": "ES512",
	"RS256": "RS256", "SHA256WITHRSA": "RS256",
	"RS384": "RS384", "SHA384WITHRSA": "RS384",
	"RS512": "RS512", "SHA512WITHRSA": "RS512",
}

// ErrUnknownAlgorithm is returned for token keys announcing an algorithm
// outside the supported set.
var ErrUnknownAlgorithm = errors.New("auth: unknown signing algorithm")

// NormalizeAlgorithm maps an announced algorithm name, case-insensitively,
// to its JWT name.
func NormalizeAlgorithm(alg string) (string, error) {
	if name, ok := algorithms[strings.ToUpper(strings.TrimSpace(alg))]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
}

// TokenKey is the verification key published by the token issuer.
type TokenKey struct {
	Alg   string `json:"alg"`
	Value string `json:"value"`
}

// VerificationKey is a parsed TokenKey ready for jwt.Parse.
type VerificationKey struct {
	Alg string
	Key any
}

// ParseTokenKey normalizes the algorithm and decodes the key material: a
// PEM public key for RSA and ECDSA, the raw secret for HMAC.
func ParseTokenKey(tk TokenKey) (*VerificationKey, error) {
	alg, err := NormalizeAlgorithm(tk.Alg)
	if err != nil {
		return nil, err
	}

	var key any
	switch alg[:2] {
	case "RS":
		key, err = jwt.ParseRSAPublicKeyFromPEM([]byte(tk.Value))
	case "ES":
		key, err = jwt.ParseECPublicKeyFromPEM([]byte(tk.Value))
	default:
		key = []byte(tk.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s token key: %w", alg, err)
	}
	return &VerificationKey{Alg: alg, Key: key}, nil
}

// KeySource fetches the token key once and caches it. A failed fetch is
// retried on the next call.
type KeySource struct {
	url    string
	client *http.Client

	mu  sync.Mutex
	key *VerificationKey
}

// NewKeySource returns a source reading the key from url.
func NewKeySource(url string, client *http.Client) *KeySource {
	return &KeySource{url: url, client: client}
}

// StaticKey returns a source that always yields key.
func StaticKey(key *VerificationKey) *KeySource {
	return &KeySource{key: key}
}

// Key returns the cached key, fetching it first if needed.
func (s *KeySource) Key(ctx context.Context) (*VerificationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating token key request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching token key: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching token key: unexpected status %d", resp.StatusCode)
	}

	var tk TokenKey
	if err := json.NewDecoder(resp.Body).Decode(&tk); err != nil {
		return nil, fmt.Errorf("decoding token key: %w", err)
	}
	key, err := ParseTokenKey(tk)
	if err != nil {
		return nil, err
	}
	s.key = key
	return key, nil
}
