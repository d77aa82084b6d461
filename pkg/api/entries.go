package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/store"
)

// Notification texts sent for entry writes.
const (
	msgAdded         = "Dataset added"
	msgDeleted       = "Dataset deleted"
	msgStatusChanged = "Dataset changed status on"
	msgForbiddenOrg  = "Forbidden access to the organisation"
	msgParseError    = "Error during parsing entry"
	msgIndexFailed   = "Putting data set in index failed"
	msgMalformed     = msgIndexFailed + ": malformed data in meta data fields."
	msgIndexDown     = msgIndexFailed + ": failed to connect to the index."
	msgNotFound      = "Data set with the given ID not found."
	msgNoConnection  = "No connection to the index."
	msgUpdateFailed  = "Failed to update the data set's attributes."
	publicStatusTag  = "public"
	privateStatusTag = "private"
)

func (s *Server) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	hit, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !authContext(r).CanRead(&hit.Entry) {
		s.log.Warnf("forbidden access to entry %s", id)
		s.writeError(w, http.StatusForbidden, "Forbidden", "No access to this data set")
		return
	}
	s.writeJSON(w, http.StatusOK, EntryResponse{ID: hit.ID, Source: hit.Entry})
}

// HandlePutEntry creates or replaces an entry. Every outcome is notified
// to the entry's organization.
func (s *Server) HandlePutEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid entry", "Failed to read request body")
		return
	}

	var owner struct {
		OrgUUID   string `json:"orgUUID"`
		SourceURI string `json:"sourceUri"`
	}
	_ = json.Unmarshal(body, &owner)

	if !authContext(r).CanWrite(owner.OrgUUID) {
		s.log.Warnf("forbidden access to organization %q", owner.OrgUUID)
		s.notifyEntry(owner.OrgUUID, owner.SourceURI, msgForbiddenOrg, "")
		s.writeError(w, http.StatusForbidden, "Forbidden", msgForbiddenOrg)
		return
	}

	entry, err := s.transformer.Transform(body)
	if err != nil {
		s.log.Errorf("%v", err)
		s.notifyEntry(owner.OrgUUID, owner.SourceURI, msgParseError, "")
		s.writeFailure(w, err)
		return
	}

	existing, err := s.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, catalog.ErrEntryNotFound):
	case err != nil:
		s.log.Errorf("%s: %v", msgIndexDown, err)
		s.notifyEntry(entry.OrgUUID, entry.SourceURI, msgIndexDown, "")
		s.writeFailure(w, err)
		return
	case !authContext(r).CanWrite(existing.OrgUUID):
		s.log.Warnf("forbidden overwrite of entry %s owned by %q", id, existing.OrgUUID)
		s.notifyEntry(entry.OrgUUID, entry.SourceURI, msgForbiddenOrg, "")
		s.writeError(w, http.StatusForbidden, "Forbidden", msgForbiddenOrg)
		return
	}

	created, err := s.store.Index(r.Context(), id, entry)
	switch {
	case errors.Is(err, store.ErrBadRequest):
		s.log.Errorf("%s: %v", msgMalformed, err)
		s.notifyEntry(entry.OrgUUID, entry.SourceURI, msgMalformed, "")
		s.writeError(w, http.StatusBadRequest, "Bad request", msgMalformed)
		return
	case err != nil:
		s.log.Errorf("%s: %v", msgIndexDown, err)
		s.notifyEntry(entry.OrgUUID, entry.SourceURI, msgIndexDown, "")
		s.writeFailure(w, err)
		return
	}

	s.notifyEntry(entry.OrgUUID, entry.SourceURI, msgAdded, "")
	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleUpdateEntry replaces the given fields of an entry. A visibility
// change first removes the public table from the dataset publisher.
func (s *Server) HandleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	hit, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !authContext(r).CanWrite(hit.OrgUUID) {
		s.log.Warnf("forbidden access to entry %s", id)
		s.writeError(w, http.StatusForbidden, "Forbidden", "No access to this data set")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid entry", "Failed to read request body")
		return
	}
	partial, err := catalog.ValidateUpdate(body)
	if err != nil {
		s.log.Warnf("request body is invalid: %v", err)
		s.writeFailure(w, err)
		return
	}

	if _, ok := partial[catalog.FieldIsPublic]; ok {
		removed, err := s.remover.DeletePublicTable(r.Context(), id, r.Header.Get("Authorization"))
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		if hit.IsPublic {
			s.metrics.ObserveCascade("publisher", removed)
		}
	}

	if err := s.store.Update(r.Context(), id, partial); err != nil {
		msg := msgNoConnection
		if errors.Is(err, catalog.ErrEntryNotFound) {
			msg = msgUpdateFailed
		}
		s.log.Errorf("%s: %v", msg, err)
		s.notifyEntry(hit.OrgUUID, hit.SourceURI, msg, "")
		s.writeFailure(w, err)
		return
	}

	updated, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	status := privateStatusTag
	if updated.IsPublic {
		status = publicStatusTag
	}
	s.notifyEntry(updated.OrgUUID, updated.SourceURI, msgStatusChanged, status)
	w.WriteHeader(http.StatusOK)
}

// HandleDeleteEntry removes an entry and cascades the deletion to the
// downloader and the dataset publisher. The cascade isn't interrupted
// when the client goes away.
func (s *Server) HandleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	hit, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !authContext(r).CanWrite(hit.OrgUUID) {
		s.log.Warnf("forbidden access to entry %s", id)
		s.writeError(w, http.StatusForbidden, "Forbidden", "No access to this data set")
		return
	}

	token := r.Header.Get("Authorization")
	if token == "" {
		s.log.Errorf("authorization header not found")
		s.writeError(w, http.StatusUnauthorized, "Unauthorized", "Authorization header not found")
		return
	}

	status, err := s.remover.Delete(context.WithoutCancel(r.Context()), id, token)
	if err != nil {
		msg := msgNoConnection
		if errors.Is(err, catalog.ErrEntryNotFound) {
			msg = msgNotFound
		}
		s.log.Errorf("%s: %v", msg, err)
		s.notifyEntry(hit.OrgUUID, hit.SourceURI, msg, "")
		s.writeFailure(w, err)
		return
	}

	s.metrics.ObserveCascade("downloader", status.DeletedFromDownloader)
	s.metrics.ObserveCascade("publisher", status.DeletedFromPublisher)
	s.notifyEntry(hit.OrgUUID, hit.SourceURI, msgDeleted, "")
	s.writeJSON(w, http.StatusOK, status)
}
