package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/rubiojr/datacatalog/pkg/auth"
	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/realtime"
	"github.com/rubiojr/datacatalog/pkg/remover"
	"github.com/rubiojr/datacatalog/pkg/search"
	"github.com/rubiojr/datacatalog/pkg/store"
)

// tokenAuth maps bearer tokens to authorization contexts.
type tokenAuth map[string]catalog.AuthContext

func (t tokenAuth) Authenticate(r *http.Request) (catalog.AuthContext, error) {
	token, err := auth.BearerToken(r)
	if err != nil {
		return catalog.AuthContext{}, err
	}
	a, ok := t[token]
	if !ok {
		return catalog.AuthContext{}, fmt.Errorf("%w: unknown token", catalog.ErrUnauthorized)
	}
	return a, nil
}

var testTokens = tokenAuth{
	"admin": {IsAdmin: true},
	"org1":  {OrgUUIDs: []string{"org1"}},
	"org2":  {OrgUUIDs: []string{"org2"}},
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) Notify(org, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, org+": "+message)
}

func (n *recordingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return ""
	}
	return n.sent[len(n.sent)-1]
}

// collaborators fakes the downloader and the dataset publisher.
type collaborators struct {
	mu         sync.Mutex
	downloader int
	publisher  int
	requests   []string
}

func (c *collaborators) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, r.Method+" "+r.URL.RequestURI())
	if strings.HasPrefix(r.URL.Path, "/rest/filestore/") {
		w.WriteHeader(c.downloader)
		return
	}
	w.WriteHeader(c.publisher)
}

type testEnv struct {
	handler  http.Handler
	store    store.Store
	notifier *recordingNotifier
	collab   *collaborators
	hub      *realtime.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	collab := &collaborators{downloader: http.StatusOK, publisher: http.StatusOK}
	srv := httptest.NewServer(collab)
	t.Cleanup(srv.Close)

	env := &testEnv{
		store:    st,
		notifier: &recordingNotifier{},
		collab:   collab,
		hub:      realtime.NewHub(8),
	}
	server := NewServer(Options{
		Store:    st,
		Auth:     testTokens,
		Exempt:   []string{"/health", "/metrics"},
		Remover:  remover.New(st, srv.Client(), srv.URL, srv.URL),
		Notifier: env.notifier,
		Hub:      env.hub,
	})
	env.handler = server.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func entryJSON(org string, public bool, title, category string) string {
	return fmt.Sprintf(`{
		"title": %q,
		"category": %q,
		"dataSample": "a,b,c",
		"format": "csv",
		"recordCount": 3,
		"size": 120,
		"sourceUri": "http://data.example.com/%s.csv",
		"targetUri": "hdfs://nameservice1/org/db-%s/%s.csv",
		"isPublic": %t,
		"orgUUID": %q
	}`, title, category, title, title, title, public, org)
}

// seed indexes entries directly through the store.
func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	tr := catalog.NewTransformer()
	docs := map[string]string{
		"own":    entryJSON("org1", false, "crimes", "safety"),
		"public": entryJSON("org2", true, "hospitals", "health"),
		"hidden": entryJSON("org2", false, "salaries", "finance"),
	}
	for id, doc := range docs {
		entry, err := tr.Transform([]byte(doc))
		if err != nil {
			t.Fatalf("transforming %s: %v", id, err)
		}
		if _, err := e.store.Index(context.Background(), id, entry); err != nil {
			t.Fatalf("indexing %s: %v", id, err)
		}
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealthIsExempt(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var health HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health.Status != "ok" || health.Version == "" {
		t.Errorf("unexpected health response %+v", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", "", "")

	w := env.do(t, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `datacatalog_http_request_duration_seconds_count{code="200",method="GET",route="health"} 1`) {
		t.Errorf("request metric missing:\n%s", w.Body.String())
	}
}

func TestAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"unknown token", "nobody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/rest/datasets", tt.token, "")
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", w.Code)
			}
			resp := decodeError(t, w)
			if resp.Status != http.StatusUnauthorized || resp.Timestamp == 0 || resp.Error != "Unauthorized" {
				t.Errorf("unexpected error body %+v", resp)
			}
		})
	}
}

func TestPutEntry(t *testing.T) {
	env := newTestEnv(t)
	body := entryJSON("org1", false, "crimes", "safety")

	w := env.do(t, http.MethodPut, "/rest/datasets/e1", "org1", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := env.notifier.last(); got != "org1: http://data.example.com/crimes.csv - Dataset added " {
		t.Errorf("unexpected notification %q", got)
	}

	w = env.do(t, http.MethodPut, "/rest/datasets/e1", "org1", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 on replace, got %d", w.Code)
	}

	hit, err := env.store.Get(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit.CreationTime == "" {
		t.Error("creationTime should be filled in")
	}
}

func TestPutEntryRejected(t *testing.T) {
	tests := []struct {
		name         string
		token        string
		body         string
		status       int
		notification string
	}{
		{
			name:         "other organization",
			token:        "org2",
			body:         entryJSON("org1", false, "crimes", "safety"),
			status:       http.StatusForbidden,
			notification: "org1: http://data.example.com/crimes.csv - Forbidden access to the organisation ",
		},
		{
			name:         "missing fields",
			token:        "org1",
			body:         `{"orgUUID": "org1", "sourceUri": "http://x/y.csv", "title": "partial"}`,
			status:       http.StatusBadRequest,
			notification: "org1: http://x/y.csv - Error during parsing entry ",
		},
		{
			name:         "bad target uri",
			token:        "admin",
			body:         strings.Replace(entryJSON("org1", false, "crimes", "safety"), "hdfs://nameservice1/org/db-crimes/crimes.csv", "nowhere", 1),
			status:       http.StatusBadRequest,
			notification: "org1: http://data.example.com/crimes.csv - Error during parsing entry ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodPut, "/rest/datasets/e1", tt.token, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if got := env.notifier.last(); got != tt.notification {
				t.Errorf("notification = %q, want %q", got, tt.notification)
			}
			if _, err := env.store.Get(context.Background(), "e1"); err == nil {
				t.Error("rejected entry was stored")
			}
		})
	}
}

func TestPutEntryOverOtherOrganization(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	w := env.do(t, http.MethodPut, "/rest/datasets/hidden", "org1", entryJSON("org1", false, "takeover", "safety"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if got, want := env.notifier.last(), "org1: http://data.example.com/takeover.csv - Forbidden access to the organisation "; got != want {
		t.Errorf("notification = %q, want %q", got, want)
	}
	hit, err := env.store.Get(context.Background(), "hidden")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit.OrgUUID != "org2" || hit.Title != "salaries" {
		t.Errorf("entry was overwritten: %+v", hit.Entry)
	}

	w = env.do(t, http.MethodPut, "/rest/datasets/hidden", "admin", entryJSON("org1", false, "moved", "safety"))
	if w.Code != http.StatusOK {
		t.Fatalf("admin overwrite: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetEntry(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	tests := []struct {
		name   string
		token  string
		id     string
		status int
	}{
		{"own private entry", "org1", "own", http.StatusOK},
		{"public entry of another org", "org1", "public", http.StatusOK},
		{"private entry of another org", "org1", "hidden", http.StatusForbidden},
		{"admin", "admin", "hidden", http.StatusOK},
		{"missing", "org1", "nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/rest/datasets/"+tt.id, tt.token, "")
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if w.Code != http.StatusOK {
				return
			}
			var resp EntryResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding entry: %v", err)
			}
			if resp.ID != tt.id || resp.Source.Title == "" {
				t.Errorf("unexpected entry %+v", resp)
			}
		})
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	tests := []struct {
		name  string
		token string
		query string
		want  []string
	}{
		{"own and public", "org1", "", []string{"crimes", "hospitals"}},
		{"only public", "org1", "onlyPublic=true", []string{"hospitals"}},
		{"only private", "org1", "onlyPrivate=true", []string{"crimes"}},
		{"admin sees all", "admin", "", []string{"crimes", "hospitals", "salaries"}},
		{"post filter", "org1", "query=" + url.QueryEscape(`{"filters": [{"category": ["Health"]}]}`), []string{"hospitals"}},
		{"text", "admin", "query=" + url.QueryEscape(`{"query": "salaries"}`), []string{"salaries"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/rest/datasets?"+tt.query, tt.token, "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			var res search.SearchResults
			if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
				t.Fatalf("decoding results: %v", err)
			}
			var titles []string
			for _, h := range res.Hits {
				titles = append(titles, h.Title)
			}
			if diff := cmp.Diff(tt.want, sorted(titles)); diff != "" {
				t.Errorf("hits mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSearchFacetsIgnorePostFilter(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	q := url.QueryEscape(`{"filters": [{"category": ["health"]}]}`)
	w := env.do(t, http.MethodGet, "/rest/datasets?query="+q, "org1", "")
	var res search.SearchResults
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding results: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("total = %d, want 1", res.Total)
	}
	if diff := cmp.Diff([]string{"health", "safety"}, sorted(res.Categories)); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchInvalidQuery(t *testing.T) {
	env := newTestEnv(t)
	tests := []string{
		`{not json`,
		`{"filters": [{"unknownField": ["x"]}]}`,
		`{"filters": [{"creationTime": ["2015"]}]}`,
	}
	for _, q := range tests {
		t.Run(q, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/rest/datasets?query="+url.QueryEscape(q), "org1", "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			if resp := decodeError(t, w); resp.Error != "Invalid query" || resp.Status != 400 {
				t.Errorf("unexpected error body %+v", resp)
			}
		})
	}
}

func TestCount(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	tests := []struct {
		token string
		query string
		want  int64
	}{
		{"org1", "", 2},
		{"org2", "", 2},
		{"admin", "", 3},
		{"org1", "?onlyPublic=true", 1},
	}
	for _, tt := range tests {
		t.Run(tt.token+tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/rest/datasets/count"+tt.query, tt.token, "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			var total int64
			if err := json.Unmarshal(w.Body.Bytes(), &total); err != nil {
				t.Fatalf("decoding count: %v", err)
			}
			if total != tt.want {
				t.Errorf("count = %d, want %d", total, tt.want)
			}
		})
	}
}

func TestUpdateEntry(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	w := env.do(t, http.MethodPost, "/rest/datasets/own", "org1", `{"title": "new title"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	hit, err := env.store.Get(context.Background(), "own")
	if err != nil {
		t.Fatal(err)
	}
	if hit.Title != "new title" || hit.Category != "safety" {
		t.Errorf("update not merged: %+v", hit.Entry)
	}
	if got := env.notifier.last(); got != "org1: http://data.example.com/crimes.csv - Dataset changed status on private" {
		t.Errorf("unexpected notification %q", got)
	}
	if len(env.collab.requests) != 0 {
		t.Errorf("publisher called without a visibility change: %v", env.collab.requests)
	}
}

func TestUpdateVisibilityRemovesPublicTable(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	w := env.do(t, http.MethodPost, "/rest/datasets/public", "org2", `{"isPublic": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if diff := cmp.Diff([]string{"DELETE /rest/tables?scope=public"}, env.collab.requests); diff != "" {
		t.Errorf("publisher requests mismatch (-want +got):\n%s", diff)
	}
	if got := env.notifier.last(); !strings.HasSuffix(got, "Dataset changed status on private") {
		t.Errorf("unexpected notification %q", got)
	}
}

func TestUpdateEntryRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	tests := []struct {
		name   string
		token  string
		id     string
		body   string
		status int
	}{
		{"other organization", "org1", "public", `{"title": "x"}`, http.StatusForbidden},
		{"unknown field", "org1", "own", `{"color": "red"}`, http.StatusBadRequest},
		{"wrong type", "org1", "own", `{"size": "big"}`, http.StatusBadRequest},
		{"missing entry", "admin", "nope", `{"title": "x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/rest/datasets/"+tt.id, tt.token, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestDeleteEntry(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	env.collab.downloader = http.StatusInternalServerError

	w := env.do(t, http.MethodDelete, "/rest/datasets/own", "org1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var status remover.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if diff := cmp.Diff(remover.Status{DeletedFromDownloader: false, DeletedFromPublisher: true}, status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if got := env.notifier.last(); got != "org1: http://data.example.com/crimes.csv - Dataset deleted " {
		t.Errorf("unexpected notification %q", got)
	}

	if w := env.do(t, http.MethodGet, "/rest/datasets/own", "org1", ""); w.Code != http.StatusNotFound {
		t.Errorf("deleted entry still served, status %d", w.Code)
	}
}

func TestDeleteEntryRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	if w := env.do(t, http.MethodDelete, "/rest/datasets/hidden", "org1", ""); w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/rest/datasets/nope", "admin", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if len(env.collab.requests) != 0 {
		t.Errorf("collaborators called: %v", env.collab.requests)
	}
}

func TestAdminElastic(t *testing.T) {
	env := newTestEnv(t)

	load := fmt.Sprintf(`[%s, %s, {"id": "bad", "title": "incomplete"}]`,
		strings.Replace(entryJSON("org1", false, "crimes", "safety"), "{", `{"id": "a",`, 1),
		strings.Replace(entryJSON("org2", true, "hospitals", "health"), "{", `{"id": "b",`, 1),
	)

	if w := env.do(t, http.MethodPut, "/rest/datasets/admin/elastic", "org1", load); w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for non admin, got %d", w.Code)
	}

	w := env.do(t, http.MethodPut, "/rest/datasets/admin/elastic", "admin", load)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp LoadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp != (LoadResponse{Indexed: 2, Skipped: 1}) {
		t.Errorf("unexpected load result %+v", resp)
	}
	if w := env.do(t, http.MethodGet, "/rest/datasets/a", "org1", ""); w.Code != http.StatusOK {
		t.Errorf("loaded entry not served, status %d", w.Code)
	}

	if w := env.do(t, http.MethodDelete, "/rest/datasets/admin/elastic", "org2", ""); w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for non admin, got %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/rest/datasets/admin/elastic", "admin", ""); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/rest/datasets/count", "admin", "")
	if strings.TrimSpace(w.Body.String()) != "0" {
		t.Errorf("expected empty index after drop, count %s", w.Body.String())
	}
}

func TestGzipResponses(t *testing.T) {
	env := newTestEnv(t)
	tr := catalog.NewTransformer()
	for i := range 5 {
		doc := strings.Replace(entryJSON("org1", true, fmt.Sprintf("set%d", i), "health"), `"a,b,c"`, fmt.Sprintf("%q", strings.Repeat("value,", 100)), 1)
		entry, err := tr.Transform([]byte(doc))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := env.store.Index(context.Background(), fmt.Sprint(i), entry); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/rest/datasets", nil)
	req.Header.Set("Authorization", "bearer org1")
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("expected a gzip response, headers %v", w.Header())
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/rest/datasets/events"
	header := http.Header{}
	header.Set("Authorization", "bearer org1")

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Size() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never registered with the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.hub.Broadcast(realtime.NewEvent("org2", "not for org1"))
	env.hub.Broadcast(realtime.NewEvent("org1", "hello org1"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev realtime.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.OrgGUID != "org1" || ev.Message != "hello org1" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestEventsStreamRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/rest/datasets/events"

	_, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err == nil {
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %v", resp)
	}
}

func TestVisible(t *testing.T) {
	ev := realtime.Event{OrgGUID: "org1"}
	tests := []struct {
		name string
		auth catalog.AuthContext
		want bool
	}{
		{"unscoped admin", catalog.AuthContext{IsAdmin: true}, true},
		{"scoped admin elsewhere", catalog.AuthContext{IsAdmin: true, OrgUUIDs: []string{"org2"}}, false},
		{"member", catalog.AuthContext{OrgUUIDs: []string{"org1"}}, true},
		{"outsider", catalog.AuthContext{OrgUUIDs: []string{"org2"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := visible(tt.auth, ev); got != tt.want {
				t.Errorf("visible() = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestRouteLabels(t *testing.T) {
	s := NewServer(Options{})
	tests := map[string]string{
		"/rest/datasets":               "search",
		"/rest/datasets/count":         "count",
		"/rest/datasets/events":        "events",
		"/rest/datasets/admin/elastic": "admin",
		"/rest/datasets/abc":           "entry",
		"/health":                      "health",
		"/metrics":                     "metrics",
		"/favicon.ico":                 "other",
	}
	for path, want := range tests {
		if got := s.route(path); got != want {
			t.Errorf("route(%q) = %q, want %q", path, got, want)
		}
	}
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
