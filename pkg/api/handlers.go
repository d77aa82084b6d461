package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/search"
	"github.com/rubiojr/datacatalog/pkg/version"
)

// maxBodySize bounds request bodies, bulk loads included.
const maxBodySize = 64 << 20

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	params := search.ParseSearchParams(r.URL.Query())
	params.Auth = authContext(r)

	results, err := s.search.Search(r.Context(), params)
	if err != nil {
		s.metrics.Searches.WithLabelValues(outcome(err)).Inc()
		if errors.Is(err, catalog.ErrIndexUnavailable) {
			s.writeError(w, http.StatusInternalServerError, "Search failed", "Failed to connect to the search index")
			return
		}
		s.writeFailure(w, err)
		return
	}

	s.metrics.Searches.WithLabelValues("ok").Inc()
	s.metrics.SearchHits.Observe(float64(results.Total))
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) HandleCount(w http.ResponseWriter, r *http.Request) {
	total, err := s.search.Count(r.Context(), authContext(r), search.ParseFiltering(r.URL.Query()))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, total)
}

// HandleLoadIndex indexes an array of entries, each carrying its ID in an
// id field. Invalid entries are skipped.
func (s *Server) HandleLoadIndex(w http.ResponseWriter, r *http.Request) {
	if !authContext(r).IsAdmin {
		s.log.Warnf("inserting data aborted, admin required")
		s.writeError(w, http.StatusForbidden, "Forbidden", "Admin privileges required")
		return
	}

	var docs []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&docs); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid entry", "Request body must be an array of entries")
		return
	}

	if err := s.store.CreateIndex(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}

	var resp LoadResponse
	for i, doc := range docs {
		id, entry, err := s.transformer.TransformWithID(doc)
		if err != nil {
			s.log.Warnf("skipping entry %d: %v", i, err)
			resp.Skipped++
			continue
		}
		if _, err := s.store.Index(r.Context(), id, entry); err != nil {
			s.writeFailure(w, err)
			return
		}
		resp.Indexed++
	}

	s.log.Infof("bulk load: %d indexed, %d skipped", resp.Indexed, resp.Skipped)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) HandleDropIndex(w http.ResponseWriter, r *http.Request) {
	if !authContext(r).IsAdmin {
		s.log.Warnf("deleting index aborted, admin required")
		s.writeError(w, http.StatusForbidden, "Forbidden", "Admin privileges required")
		return
	}

	s.log.Infof("deleting the catalog index")
	if err := s.store.DropIndex(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	s.writeJSON(w, http.StatusOK, health)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, catalog.ErrInvalidQuery):
		return "invalid"
	case errors.Is(err, catalog.ErrIndexUnavailable):
		return "unavailable"
	}
	return "error"
}
