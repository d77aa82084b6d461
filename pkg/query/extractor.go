package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/log"
)

// DatasetFiltering selects which entries a search may return with respect
// to their visibility.
type DatasetFiltering int

const (
	// PrivateAndPublic returns entries owned by the caller's organizations
	// and every public entry.
	PrivateAndPublic DatasetFiltering = iota
	// OnlyPublic returns public entries only.
	OnlyPublic
	// OnlyPrivate returns non-public entries owned by the caller's
	// organizations.
	OnlyPrivate
)

func (d DatasetFiltering) String() string {
	switch d {
	case OnlyPublic:
		return "only-public"
	case OnlyPrivate:
		return "only-private"
	}
	return "private-and-public"
}

// openBound marks an unbounded side of a creationTime range.
const openBound = -1

// FilterExtractor turns caller filters and an authorization context into
// the query filter and the post-filter of a search.
type FilterExtractor struct {
	log *log.Logger
}

// NewFilterExtractor returns a FilterExtractor.
func NewFilterExtractor() *FilterExtractor {
	return &FilterExtractor{log: log.ForService("query")}
}

type clause struct {
	filter Filter
	seeded bool
}

// Extract validates filters and places every clause.
//
// Ownership and visibility clauses are seeded from auth and mode. With
// PrivateAndPublic the seeded clauses are OR'd (mine or public) and the OR
// group is AND'd with the creationTime range; everything else becomes a
// post-filter. With the other modes orgUUID, isPublic and creationTime are
// AND'd into the query filter. Caller supplied orgUUID or isPublic filters
// only ever narrow the result: they are AND'd, never OR'd with the seeds.
func (x *FilterExtractor) Extract(filters []json.RawMessage, auth catalog.AuthContext, mode DatasetFiltering) (queryFilter, postFilter Expr, err error) {
	clauses := make([]clause, 0, len(filters)+2)
	for _, raw := range filters {
		f, err := x.resolve(raw)
		if err != nil {
			return nil, nil, err
		}
		clauses = append(clauses, clause{filter: f})
	}
	for _, f := range seed(auth, mode) {
		clauses = append(clauses, clause{filter: f, seeded: true})
	}

	var and, or, post []Expr
	for _, c := range clauses {
		leaf := Leaf{c.filter}
		switch field := c.filter.Field; {
		case mode == PrivateAndPublic && c.seeded:
			or = append(or, leaf)
		case isOwnership(field), field == catalog.FieldCreationTime:
			and = append(and, leaf)
		default:
			post = append(post, leaf)
		}
	}

	switch {
	case len(or) > 0 && len(and) == 0:
		queryFilter = Or(or)
	case len(or) > 0:
		queryFilter = append(And(and), Or(or))
	case len(and) > 0:
		queryFilter = And(and)
	}
	if len(post) > 0 {
		postFilter = And(post)
	}
	return queryFilter, postFilter, nil
}

func isOwnership(field string) bool {
	return field == catalog.FieldOrgUUID || field == catalog.FieldIsPublic
}

// seed builds the ownership and visibility constraints. They are built
// directly rather than validated: an empty organization list yields an
// AnyOf with no values, which matches nothing.
func seed(auth catalog.AuthContext, mode DatasetFiltering) []Filter {
	scoped := !auth.IsAdmin || len(auth.OrgUUIDs) > 0
	var seeds []Filter
	switch mode {
	case PrivateAndPublic:
		if scoped {
			seeds = append(seeds, orgFilter(auth.OrgUUIDs), Eq(catalog.FieldIsPublic, "true"))
		}
	case OnlyPrivate:
		if scoped {
			seeds = append(seeds, orgFilter(auth.OrgUUIDs))
		}
		seeds = append(seeds, Eq(catalog.FieldIsPublic, "false"))
	case OnlyPublic:
		seeds = append(seeds, Eq(catalog.FieldIsPublic, "true"))
	}
	return seeds
}

func orgFilter(orgs []string) Filter {
	var values []string
	for _, o := range orgs {
		values = append(values, strings.ToLower(o))
	}
	if len(values) == 1 {
		return Eq(catalog.FieldOrgUUID, values[0])
	}
	return In(catalog.FieldOrgUUID, values...)
}

func (x *FilterExtractor) resolve(raw json.RawMessage) (Filter, error) {
	var item map[string]json.RawMessage
	if err := json.Unmarshal(raw, &item); err != nil || item == nil {
		return Filter{}, x.invalid("filter is not an object: %s", raw)
	}
	if len(item) != 1 {
		return Filter{}, x.invalid("filter must name exactly one field, got %d", len(item))
	}

	var field string
	var rawValues json.RawMessage
	for k, v := range item {
		field, rawValues = k, v
	}
	if !catalog.IsIndexedField(field) {
		return Filter{}, x.invalid("can't filter over field %q, it isn't in the mapping", field)
	}

	var values []any
	dec := json.NewDecoder(bytes.NewReader(rawValues))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil || values == nil {
		return Filter{}, x.invalid("values of filter %q aren't a list", field)
	}
	if len(values) == 0 {
		return Filter{}, x.invalid("filter %q doesn't contain any values", field)
	}

	if field == catalog.FieldCreationTime {
		return x.timeRange(field, values)
	}

	normalized := make([]string, len(values))
	for i, v := range values {
		s, err := x.scalar(field, v)
		if err != nil {
			return Filter{}, err
		}
		normalized[i] = strings.ToLower(s)
	}
	return Match(field, normalized...), nil
}

func (x *FilterExtractor) timeRange(field string, values []any) (Filter, error) {
	if len(values) != 2 {
		return Filter{}, x.invalid("there should be exactly two time range values, got %d", len(values))
	}
	var bounds [2]*string
	for i, v := range values {
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil && f == openBound {
				continue
			}
		}
		s, err := x.scalar(field, v)
		if err != nil {
			return Filter{}, err
		}
		bounds[i] = &s
	}
	return Between(field, bounds[0], bounds[1]), nil
}

func (x *FilterExtractor) scalar(field string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case bool:
		if s {
			return "true", nil
		}
		return "false", nil
	}
	return "", x.invalid("filter %q has a non scalar value %v", field, v)
}

func (x *FilterExtractor) invalid(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	x.log.Errorf("invalid query: %s", msg)
	return fmt.Errorf("%w: %s", catalog.ErrInvalidQuery, msg)
}
