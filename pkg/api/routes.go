package api

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/rubiojr/datacatalog/pkg/auth"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	base := s.basePath

	mux.HandleFunc("GET "+base, s.HandleSearch)
	mux.HandleFunc("GET "+base+"/count", s.HandleCount)
	mux.HandleFunc("GET "+base+"/events", s.HandleEvents)

	mux.HandleFunc("PUT "+base+"/admin/elastic", s.HandleLoadIndex)
	mux.HandleFunc("DELETE "+base+"/admin/elastic", s.HandleDropIndex)

	mux.HandleFunc("GET "+base+"/{id}", s.HandleGetEntry)
	mux.HandleFunc("PUT "+base+"/{id}", s.HandlePutEntry)
	mux.HandleFunc("POST "+base+"/{id}", s.HandleUpdateEntry)
	mux.HandleFunc("DELETE "+base+"/{id}", s.HandleDeleteEntry)

	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
}

// Handler returns the complete HTTP handler: routes behind authentication,
// CORS, gzip compression, request IDs and request metrics. The event
// stream skips compression since it hijacks the connection.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var h http.Handler = mux
	h = auth.Middleware(s.auth, s.exempt, s.authError)(h)
	h = CorsMiddleware(h)

	compressed := gzhttp.GzipHandler(h)
	events := s.basePath + "/events"
	dispatch := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == events {
			h.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})

	return s.requestID(s.instrument(dispatch))
}
