// Package auth turns a request's bearer token into the catalog.AuthContext
// the query layer filters with.
//
// A Provider verifies the token against the issuer's published key, marks
// holders of the admin scope as administrators and resolves the
// organizations the request may act on, asking the user management
// service which organizations the user belongs to.
//
// Middleware runs a Provider in front of the API, stores the result in
// the request context (FromContext) and answers 401 or 403 itself.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/log"
)

// Defaults used when the configuration leaves them empty.
const (
	DefaultAudience   = "cloud_controller"
	DefaultAdminScope = "console.admin"
)

// Authenticator derives the authorization context of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (catalog.AuthContext, error)
}

// Provider authenticates requests with verified bearer tokens.
type Provider struct {
	verifier   *Verifier
	orgs       OrgLister
	adminScope string
	log        *log.Logger
}

// NewProvider returns a provider. An empty adminScope means
// DefaultAdminScope.
func NewProvider(verifier *Verifier, orgs OrgLister, adminScope string) *Provider {
	if adminScope == "" {
		adminScope = DefaultAdminScope
	}
	return &Provider{
		verifier:   verifier,
		orgs:       orgs,
		adminScope: adminScope,
		log:        log.ForService("auth"),
	}
}

// Authenticate verifies the request's token and resolves its org scope.
// Token problems wrap catalog.ErrUnauthorized; scope problems wrap
// catalog.ErrForbidden.
func (p *Provider) Authenticate(r *http.Request) (catalog.AuthContext, error) {
	token, err := BearerToken(r)
	if err != nil {
		return catalog.AuthContext{}, err
	}

	claims, err := p.verifier.Verify(r.Context(), token)
	if err != nil {
		p.log.Warnf("rejecting token: %v", err)
		return catalog.AuthContext{}, fmt.Errorf("%w: %v", catalog.ErrUnauthorized, err)
	}
	isAdmin := claims.HasScope(p.adminScope)

	requested := RequestedOrgs(r)
	var userOrgs []string
	if !isAdmin {
		userOrgs, err = p.orgs.UserOrgs(r.Context(), token)
		if err != nil {
			p.log.Errorf("listing user organizations: %v", err)
			return catalog.AuthContext{}, fmt.Errorf("%w: %v", catalog.ErrForbidden, err)
		}
	}
	p.log.Debugf("user orgs %v, requested %v, admin %t", userOrgs, requested, isAdmin)

	scope, err := ResolveScope(requested, userOrgs, isAdmin)
	if err != nil {
		p.log.Warnf("%v", err)
		return catalog.AuthContext{}, err
	}
	return catalog.AuthContext{IsAdmin: isAdmin, OrgUUIDs: scope}, nil
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: authorization header not found", catalog.ErrUnauthorized)
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", fmt.Errorf("%w: malformed authorization header", catalog.ErrUnauthorized)
	}
	return token, nil
}

// Static authenticates every request with the same context. It backs
// local runs with authentication disabled.
type Static catalog.AuthContext

// Authenticate returns s.
func (s Static) Authenticate(*http.Request) (catalog.AuthContext, error) {
	return catalog.AuthContext(s), nil
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying auth.
func NewContext(ctx context.Context, auth catalog.AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, auth)
}

// FromContext returns the authorization context stored by Middleware.
func FromContext(ctx context.Context) (catalog.AuthContext, bool) {
	auth, ok := ctx.Value(contextKey{}).(catalog.AuthContext)
	return auth, ok
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware authenticates every request whose path doesn't start with one
// of the exempt prefixes. Failures are handed to onError, which defaults
// to plain 401 and 403 responses.
func Middleware(a Authenticator, exempt []string, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = plainError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range exempt {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			auth, err := a.Authenticate(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), auth)))
		})
	}
}

func plainError(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusForbidden
	if errors.Is(err, catalog.ErrUnauthorized) {
		status = http.StatusUnauthorized
	}
	http.Error(w, http.StatusText(status), status)
}
