package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTokenExpired is returned when user management rejects the token.
	ErrTokenExpired = errors.New("auth: token not found or expired")
	// ErrOrgsNotFound is returned when user management doesn't know the user.
	ErrOrgsNotFound = errors.New("auth: user not found in user management")
	// ErrUserManagement covers every other user management failure.
	ErrUserManagement = errors.New("auth: user management service error")
)

// OrgLister returns the organizations the token's user belongs to.
type OrgLister interface {
	UserOrgs(ctx context.Context, token string) ([]string, error)
}

// OrgClient asks the user management service for a user's organizations.
type OrgClient struct {
	url    string
	client *http.Client
}

// NewOrgClient returns a client for the permissions endpoint at url.
func NewOrgClient(url string, client *http.Client) *OrgClient {
	return &OrgClient{url: url, client: client}
}

type orgPermission struct {
	Organization struct {
		Metadata struct {
			GUID string `json:"guid"`
		} `json:"metadata"`
	} `json:"organization"`
}

// UserOrgs lists the organization GUIDs the token's user can access.
func (c *OrgClient) UserOrgs(ctx context.Context, token string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserManagement, err)
	}
	req.Header.Set("Authorization", "bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserManagement, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrTokenExpired
	case http.StatusNotFound:
		return nil, ErrOrgsNotFound
	default:
		return nil, fmt.Errorf("%w: status code %d", ErrUserManagement, resp.StatusCode)
	}

	var perms []orgPermission
	if err := json.NewDecoder(resp.Body).Decode(&perms); err != nil {
		return nil, fmt.Errorf("%w: decoding permissions: %v", ErrUserManagement, err)
	}
	orgs := make([]string, 0, len(perms))
	for _, p := range perms {
		orgs = append(orgs, p.Organization.Metadata.GUID)
	}
	return orgs, nil
}
