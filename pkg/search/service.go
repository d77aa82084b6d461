package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/log"
	"github.com/rubiojr/datacatalog/pkg/query"
	"github.com/rubiojr/datacatalog/pkg/store"
)

// SearchParams holds everything needed to run one search.
type SearchParams struct {
	// Query is the raw client query document. Empty means "everything".
	Query string

	// Auth describes who is searching. It determines which private
	// entries are visible.
	Auth catalog.AuthContext

	// Filtering restricts results to public entries, private entries, or
	// neither (the zero value).
	Filtering query.DatasetFiltering
}

// SearchResults is the flattened answer to a search.
type SearchResults struct {
	// Hits are the entries on the requested page, each with its ID.
	Hits []catalog.Hit `json:"hits"`

	// Total counts every match, not only those on this page.
	Total int64 `json:"total"`

	// Categories and Formats are the facet keys, most frequent first.
	// Post-filters don't affect them.
	Categories []string `json:"categories"`
	Formats    []string `json:"formats"`
}

// SearchService compiles and runs searches against a store.
type SearchService struct {
	translator *query.Translator
	store      store.Store
	log        *log.Logger
}

// NewSearchService returns a service searching st.
func NewSearchService(st store.Store) *SearchService {
	return &SearchService{
		translator: query.NewTranslator(),
		store:      st,
		log:        log.ForService("search"),
	}
}

// Search runs params against the store.
func (s *SearchService) Search(ctx context.Context, params SearchParams) (*SearchResults, error) {
	compiled, err := s.translator.Translate(params.Query, params.Auth, params.Filtering)
	if err != nil {
		return nil, err
	}

	res, err := s.store.Search(ctx, compiled)
	if err != nil {
		return nil, s.mapError(err)
	}

	hits := res.Hits
	if hits == nil {
		hits = []catalog.Hit{}
	}
	return &SearchResults{
		Hits:       hits,
		Total:      res.Total,
		Categories: res.Keys(query.FacetCategories),
		Formats:    res.Keys(query.FacetFormats),
	}, nil
}

// Count returns how many entries the caller can see under filtering.
func (s *SearchService) Count(ctx context.Context, auth catalog.AuthContext, filtering query.DatasetFiltering) (int64, error) {
	res, err := s.Search(ctx, SearchParams{Query: `{"size": 0}`, Auth: auth, Filtering: filtering})
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

func (s *SearchService) mapError(err error) error {
	switch {
	case errors.Is(err, store.ErrBadRequest):
		s.log.Warnf("search rejected by store: %v", err)
		return fmt.Errorf("%w: %v", catalog.ErrInvalidQuery, err)
	case errors.Is(err, store.ErrUnavailable):
		s.log.Errorf("search index unavailable: %v", err)
		return fmt.Errorf("%w: %v", catalog.ErrIndexUnavailable, err)
	}
	s.log.Errorf("search failed: %v", err)
	return err
}

// ParseSearchParams reads the query document and the visibility flags
// from HTTP query parameters. Auth is left for the caller to fill in.
func ParseSearchParams(values url.Values) SearchParams {
	return SearchParams{
		Query:     values.Get("query"),
		Filtering: ParseFiltering(values),
	}
}

// ParseFiltering derives the DatasetFiltering mode from the onlyPublic and
// onlyPrivate flags, each compared case-insensitively to "true". When both
// are set onlyPrivate wins.
func ParseFiltering(values url.Values) query.DatasetFiltering {
	filtering := query.PrivateAndPublic
	if strings.EqualFold(values.Get("onlyPublic"), "true") {
		filtering = query.OnlyPublic
	}
	if strings.EqualFold(values.Get("onlyPrivate"), "true") {
		filtering = query.OnlyPrivate
	}
	return filtering
}
