package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rubiojr/datacatalog/pkg/auth"
	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/log"
	"github.com/rubiojr/datacatalog/pkg/metrics"
	"github.com/rubiojr/datacatalog/pkg/notify"
	"github.com/rubiojr/datacatalog/pkg/realtime"
	"github.com/rubiojr/datacatalog/pkg/remover"
	"github.com/rubiojr/datacatalog/pkg/search"
	"github.com/rubiojr/datacatalog/pkg/store"
)

// DefaultBasePath is where the catalog resources live unless configured
// otherwise.
const DefaultBasePath = "/rest/datasets"

// Options wires a Server. Store, Auth and Remover are required.
type Options struct {
	BasePath string
	Store    store.Store
	Auth     auth.Authenticator
	// Exempt lists path prefixes served without authentication.
	Exempt   []string
	Remover  *remover.Remover
	Notifier notify.Notifier
	Hub      *realtime.Hub
	Metrics  *metrics.Metrics
}

type Server struct {
	basePath    string
	store       store.Store
	search      *search.SearchService
	transformer *catalog.Transformer
	auth        auth.Authenticator
	exempt      []string
	remover     *remover.Remover
	notifier    notify.Notifier
	hub         *realtime.Hub
	metrics     *metrics.Metrics
	log         *log.Logger
}

func NewServer(opts Options) *Server {
	s := &Server{
		basePath:    "/" + strings.Trim(opts.BasePath, "/"),
		store:       opts.Store,
		search:      search.NewSearchService(opts.Store),
		transformer: catalog.NewTransformer(),
		auth:        opts.Auth,
		exempt:      opts.Exempt,
		remover:     opts.Remover,
		notifier:    opts.Notifier,
		hub:         opts.Hub,
		metrics:     opts.Metrics,
		log:         log.ForService("api"),
	}
	if opts.BasePath == "" {
		s.basePath = DefaultBasePath
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.hub == nil {
		s.hub = realtime.NewHub(0)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:     error,
		Message:   message,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	}
	s.writeJSON(w, status, response)
}

// writeFailure maps err to its HTTP status and writes the error body.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorf("%s: %v", kind, err)
	}
	s.writeError(w, status, kind, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrInvalidQuery):
		return http.StatusBadRequest, "Invalid query"
	case errors.Is(err, catalog.ErrInvalidEntry):
		return http.StatusBadRequest, "Invalid entry"
	case errors.Is(err, store.ErrBadRequest):
		return http.StatusBadRequest, "Bad request"
	case errors.Is(err, catalog.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, catalog.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, catalog.ErrEntryNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, catalog.ErrIndexUnavailable), errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "Index unavailable"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func (s *Server) authError(w http.ResponseWriter, _ *http.Request, err error) {
	s.writeFailure(w, err)
}

// authContext returns the caller's authorization context. Middleware
// always sets it for non-exempt routes.
func authContext(r *http.Request) catalog.AuthContext {
	a, _ := auth.FromContext(r.Context())
	return a
}

// notifyEntry reports message about the data set owned by org at
// sourceURI.
func (s *Server) notifyEntry(org, sourceURI, message, status string) {
	s.notifier.Notify(org, notify.Message(sourceURI, message, status))
	s.metrics.Notifications.WithLabelValues("sent").Inc()
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
