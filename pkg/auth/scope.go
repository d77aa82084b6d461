package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rubiojr/datacatalog/pkg/catalog"
)

// maxScopeBody bounds how much of a write body is buffered to find its
// orgUUID.
const maxScopeBody = 32 << 20

// RequestedOrgs returns the organizations a request asks to act on. GET
// requests name them in the comma separated orgs parameter, PUT and POST
// requests in the body's orgUUID field. Other methods request none.
//
// The body is restored so handlers can read it again.
func RequestedOrgs(r *http.Request) []string {
	switch r.Method {
	case http.MethodGet:
		raw := r.URL.Query().Get("orgs")
		if raw == "" {
			return nil
		}
		var orgs []string
		for _, org := range strings.Split(raw, ",") {
			orgs = append(orgs, strings.ToLower(strings.TrimSpace(org)))
		}
		return orgs
	case http.MethodPut, http.MethodPost:
		if r.Body == nil {
			return nil
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxScopeBody))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return nil
		}
		var doc struct {
			OrgUUID any `json:"orgUUID"`
		}
		if json.Unmarshal(body, &doc) != nil {
			return nil
		}
		if org, ok := doc.OrgUUID.(string); ok && org != "" {
			return []string{strings.ToLower(org)}
		}
	}
	return nil
}

// ResolveScope decides which organizations the request operates on.
// Admins get exactly what they asked for. Other users get the requested
// organizations when they belong to all of them, their own organizations
// when they asked for none, and ErrForbidden otherwise.
func ResolveScope(requested, userOrgs []string, isAdmin bool) ([]string, error) {
	switch {
	case isAdmin:
		return requested, nil
	case len(requested) == 0:
		return userOrgs, nil
	}

	member := make(map[string]bool, len(userOrgs))
	for _, org := range userOrgs {
		member[strings.ToLower(org)] = true
	}
	for _, org := range requested {
		if !member[org] {
			return nil, fmt.Errorf("%w: no access to organization %s", catalog.ErrForbidden, org)
		}
	}
	return requested, nil
}
