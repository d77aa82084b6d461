// Package store persists catalog entries and runs compiled searches.
//
// Two backends implement Store: Elastic talks to an Elasticsearch cluster
// and is what production deployments use; SQLite keeps the catalog in a
// local database file and serves development setups and tests.
package store

import (
	"context"
	"errors"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/query"
)

var (
	// ErrBadRequest means the backend rejected the request as malformed.
	ErrBadRequest = errors.New("store: bad request")
	// ErrUnavailable means the backend could not be reached.
	ErrUnavailable = errors.New("store: unavailable")
	// ErrUnsupportedDialect means a backend was configured with a query
	// dialect it cannot send.
	ErrUnsupportedDialect = errors.New("store: unsupported dialect")
)

// Store is a document store for catalog entries. Operations on a missing
// entry return catalog.ErrEntryNotFound.
type Store interface {
	Get(ctx context.Context, id string) (*catalog.Hit, error)
	// Index creates or replaces an entry and reports whether it was
	// created.
	Index(ctx context.Context, id string, e *catalog.Entry) (created bool, err error)
	// Update merges partial into the stored entry.
	Update(ctx context.Context, id string, partial map[string]any) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q *query.CompiledQuery) (*Result, error)

	// CreateIndex prepares the backing index; it is a no-op when the
	// index exists.
	CreateIndex(ctx context.Context) error
	// DropIndex removes the index and every entry in it.
	DropIndex(ctx context.Context) error
	Close() error
}

// Result is the outcome of a search.
type Result struct {
	Hits         []catalog.Hit
	Total        int64
	Aggregations map[string][]Bucket
}

// Bucket is one facet value and the number of matching entries.
type Bucket struct {
	Key   string
	Count int64
}

// Keys returns the bucket keys of the named aggregation in order.
func (r *Result) Keys(name string) []string {
	buckets := r.Aggregations[name]
	keys := make([]string, 0, len(buckets))
	for _, b := range buckets {
		keys = append(keys, b.Key)
	}
	return keys
}

// defaultPageSize matches the Elasticsearch default when size is absent.
const defaultPageSize = 10

// facetSize is the number of buckets returned per aggregation.
const facetSize = 10
