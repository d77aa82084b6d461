package query

import (
	"encoding/json"
	"fmt"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/log"
)

// Aggregation is a terms facet over Field reported under Name.
type Aggregation struct {
	Name  string
	Field string
}

// Facet names returned with every search.
const (
	FacetCategories = "categories"
	FacetFormats    = "formats"
)

// DefaultAggregations are the facets computed for every search.
var DefaultAggregations = []Aggregation{
	{Name: FacetCategories, Field: catalog.FieldCategory},
	{Name: FacetFormats, Field: catalog.FieldFormat},
}

// CompiledQuery is a search ready to be handed to a store backend.
//
// Filter restricts both hits and facets. PostFilter restricts hits only.
// From and Size are nil unless the request carried them.
type CompiledQuery struct {
	Text         TextQuery
	Filter       Expr
	PostFilter   Expr
	Aggregations []Aggregation
	From         *int
	Size         *int
}

// request is the client query document.
type request struct {
	Query   *string
	Filters []json.RawMessage
	From    *int
	Size    *int
}

// Translator compiles client query documents.
type Translator struct {
	extractor *FilterExtractor
	log       *log.Logger
}

// NewTranslator returns a Translator.
func NewTranslator() *Translator {
	return &Translator{
		extractor: NewFilterExtractor(),
		log:       log.ForService("query"),
	}
}

// Translate compiles raw, a JSON query document, for a caller described by
// auth. An empty raw string is an empty query. Malformed documents wrap
// catalog.ErrInvalidQuery.
func (t *Translator) Translate(raw string, auth catalog.AuthContext, mode DatasetFiltering) (*CompiledQuery, error) {
	req, err := t.parse(raw)
	if err != nil {
		return nil, err
	}

	text := ""
	if req.Query != nil {
		text = *req.Query
	}
	filter, post, err := t.extractor.Extract(req.Filters, auth, mode)
	if err != nil {
		return nil, err
	}

	return &CompiledQuery{
		Text:         BuildTextQuery(text),
		Filter:       filter,
		PostFilter:   post,
		Aggregations: DefaultAggregations,
		From:         req.From,
		Size:         req.Size,
	}, nil
}

func (t *Translator) parse(raw string) (*request, error) {
	var req request
	if raw == "" {
		return &req, nil
	}

	var probe any
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, t.invalid("supplied query is not a JSON document")
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, t.invalid("supplied query is not a JSON object")
	}

	// Keys are matched exactly; anything else in the document is ignored.
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, t.invalid("malformed query: %v", err)
	}
	fields := []struct {
		key string
		dst any
	}{
		{"query", &req.Query},
		{"filters", &req.Filters},
		{"from", &req.From},
		{"size", &req.Size},
	}
	for _, f := range fields {
		v, ok := doc[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return nil, t.invalid("malformed query: %s: %v", f.key, err)
		}
	}
	return &req, nil
}

func (t *Translator) invalid(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	t.log.Errorf("invalid query: %s", msg)
	return fmt.Errorf("%w: %s", catalog.ErrInvalidQuery, msg)
}
