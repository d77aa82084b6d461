package integration_tests

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rubiojr/datacatalog/pkg/api"
	"github.com/rubiojr/datacatalog/pkg/auth"
	"github.com/rubiojr/datacatalog/pkg/realtime"
	"github.com/rubiojr/datacatalog/pkg/remover"
	"github.com/rubiojr/datacatalog/pkg/store"
)

// Cluster is a catalog service wired to fake platform services: a token
// issuer, the user management service, the downloader and the dataset
// publisher.
type Cluster struct {
	URL   string
	Store store.Store
	Hub   *realtime.Hub

	key *rsa.PrivateKey

	mu        sync.Mutex
	members   map[string][]string
	umDown    bool
	collabLog []string
}

// NewCluster starts the service and its collaborators for the test.
func NewCluster(t *testing.T) *Cluster {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshaling public key: %v", err)
	}
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	c := &Cluster{key: priv, members: map[string][]string{}}

	uaa := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(auth.TokenKey{Alg: "SHA256withRSA", Value: pubPEM})
	}))
	t.Cleanup(uaa.Close)

	um := httptest.NewServer(http.HandlerFunc(c.serveUserManagement))
	t.Cleanup(um.Close)

	collab := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.collabLog = append(c.collabLog, fmt.Sprintf("%s %s %s", r.Method, r.URL.RequestURI(), r.Header.Get("Authorization")))
		c.mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(collab.Close)

	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	verifier := auth.NewVerifier(auth.NewKeySource(uaa.URL, uaa.Client()), auth.DefaultAudience)
	provider := auth.NewProvider(verifier, auth.NewOrgClient(um.URL, um.Client()), "")

	c.Store = st
	c.Hub = realtime.NewHub(16)
	server := api.NewServer(api.Options{
		Store:   st,
		Auth:    provider,
		Exempt:  []string{"/health", "/metrics"},
		Remover: remover.New(st, collab.Client(), collab.URL, collab.URL),
		Hub:     c.Hub,
	})
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	c.URL = srv.URL
	return c
}

func (c *Cluster) serveUserManagement(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "bearer ")

	c.mu.Lock()
	down := c.umDown
	orgs, ok := c.members[token]
	c.mu.Unlock()

	switch {
	case down:
		w.WriteHeader(http.StatusBadGateway)
		return
	case !ok:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	type metadata struct {
		GUID string `json:"guid"`
	}
	type organization struct {
		Metadata metadata `json:"metadata"`
	}
	perms := []map[string]organization{}
	for _, org := range orgs {
		perms = append(perms, map[string]organization{"organization": {Metadata: metadata{GUID: org}}})
	}
	_ = json.NewEncoder(w).Encode(perms)
}

// User issues a token for a member of orgs.
func (c *Cluster) User(t *testing.T, orgs ...string) string {
	t.Helper()
	token := c.sign(t, time.Now().Add(time.Hour))
	c.mu.Lock()
	c.members[token] = orgs
	c.mu.Unlock()
	return token
}

// Admin issues a token carrying the admin scope.
func (c *Cluster) Admin(t *testing.T) string {
	t.Helper()
	return c.sign(t, time.Now().Add(time.Hour), auth.DefaultAdminScope)
}

// Expired issues a token that expired a minute ago.
func (c *Cluster) Expired(t *testing.T) string {
	t.Helper()
	return c.sign(t, time.Now().Add(-time.Minute))
}

// SetUserManagementDown makes the user management service fail.
func (c *Cluster) SetUserManagementDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.umDown = down
}

// CollaboratorRequests returns the requests the downloader and the
// publisher received, as "METHOD URI AUTHORIZATION".
func (c *Cluster) CollaboratorRequests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.collabLog...)
}

var tokenSeq atomic.Int64

func (c *Cluster) sign(t *testing.T, expires time.Time, scopes ...string) string {
	t.Helper()
	claims := auth.Claims{
		Scope: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{auth.DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(expires),
			Subject:   fmt.Sprintf("user-%d", tokenSeq.Add(1)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// Do sends a request to the service with token as bearer credentials.
func (c *Cluster) Do(t *testing.T, method, path, token, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.URL+path, rd)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return resp.StatusCode, data
}

// EntryJSON returns a valid entry document.
func EntryJSON(org, title string, public bool) string {
	return fmt.Sprintf(`{
		"title": %q,
		"category": "health",
		"dataSample": "hospital,beds",
		"format": "csv",
		"recordCount": 42,
		"size": 4096,
		"sourceUri": "http://data.example.com/%s.csv",
		"targetUri": "hdfs://nameservice1/org/%s/brokers/userspace/db-%s/000000_1",
		"isPublic": %t,
		"orgUUID": %q
	}`, title, org, title, title, public, org)
}

func timeInAnHour() time.Time {
	return time.Now().Add(time.Hour)
}
