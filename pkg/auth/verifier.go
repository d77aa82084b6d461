package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims the catalog cares about.
type Claims struct {
	Scope jwt.ClaimStrings `json:"scope"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scope, scope)
}

// Verifier checks bearer tokens against the issuer's key.
type Verifier struct {
	keys     *KeySource
	audience string
}

// NewVerifier returns a verifier requiring audience in every token.
func NewVerifier(keys *KeySource, audience string) *Verifier {
	return &Verifier{keys: keys, audience: audience}
}

// Verify parses token and checks its signature, expiry and audience.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	key, err := v.keys.Key(ctx)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key.Key, nil },
		jwt.WithValidMethods([]string{key.Alg}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}
	return claims, nil
}
