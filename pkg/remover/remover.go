// Package remover deletes a data set everywhere it lives: the catalog
// index, the downloader's file store and the dataset publisher's tables.
package remover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/log"
	"github.com/rubiojr/datacatalog/pkg/store"
)

// Status reports which collaborators confirmed the deletion.
type Status struct {
	DeletedFromDownloader bool `json:"deleted_from_downloader"`
	DeletedFromPublisher  bool `json:"deleted_from_publisher"`
}

// Remover runs cascading deletes.
type Remover struct {
	store         store.Store
	client        *http.Client
	downloaderURL string
	publisherURL  string
	log           *log.Logger
}

// New returns a remover. downloaderURL and publisherURL are service base
// URLs; the REST paths are appended here.
func New(st store.Store, client *http.Client, downloaderURL, publisherURL string) *Remover {
	return &Remover{
		store:         st,
		client:        client,
		downloaderURL: strings.TrimRight(downloaderURL, "/"),
		publisherURL:  strings.TrimRight(publisherURL, "/"),
		log:           log.ForService("remover"),
	}
}

// Delete removes the entry from the index, then asks the downloader and
// the publisher to drop their copies. Collaborator failures don't abort
// the cascade; they show up as false in the status. Index errors are
// returned as is.
func (r *Remover) Delete(ctx context.Context, id, token string) (*Status, error) {
	hit, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return nil, err
	}

	return &Status{
		DeletedFromDownloader: r.deleteFromDownloader(ctx, hit.TargetURI, token),
		DeletedFromPublisher:  r.external(ctx, "dataset publisher", token, r.tablesURL(false), &hit.Entry),
	}, nil
}

// DeletePublicTable asks the publisher to drop the public table of a
// public entry. It reports false without calling out for private ones.
func (r *Remover) DeletePublicTable(ctx context.Context, id, token string) (bool, error) {
	hit, err := r.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !hit.IsPublic {
		return false, nil
	}
	return r.external(ctx, "dataset publisher", token, r.tablesURL(true), &hit.Entry), nil
}

func (r *Remover) deleteFromDownloader(ctx context.Context, targetURI, token string) bool {
	dbID, err := DatabaseID(targetURI)
	if err != nil {
		r.log.Warnf("not deleting from downloader: %v", err)
		return false
	}
	endpoint := fmt.Sprintf("%s/rest/filestore/%s/", r.downloaderURL, url.PathEscape(dbID))
	return r.external(ctx, "downloader", token, endpoint, nil)
}

func (r *Remover) tablesURL(public bool) string {
	endpoint := r.publisherURL + "/rest/tables"
	if public {
		endpoint += "?scope=public"
	}
	return endpoint
}

// external sends DELETE to endpoint with the optional JSON body and
// reports whether the service answered 200.
func (r *Remover) external(ctx context.Context, service, token, endpoint string, body *catalog.Entry) bool {
	r.log.Infof("sending delete request to %s", endpoint)

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			r.log.Errorf("encoding delete request for %s: %v", service, err)
			return false
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, payload)
	if err != nil {
		r.log.Errorf("creating delete request for %s: %v", service, err)
		return false
	}
	req.Header.Set("Authorization", token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warnf("failed to delete data set from %s: %v", service, err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		r.log.Warnf("failed to delete data set from %s: status %d", service, resp.StatusCode)
		return false
	}
	return true
}

// DatabaseID returns the second to last path segment of targetURI, which
// names the downloader's storage for the data set.
func DatabaseID(targetURI string) (string, error) {
	parts := strings.Split(targetURI, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" {
		return "", fmt.Errorf("no database id in target uri %q", targetURI)
	}
	return parts[len(parts)-2], nil
}
