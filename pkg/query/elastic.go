package query

import (
	"encoding/json"
	"fmt"
)

// Dialect selects the Elasticsearch query syntax.
type Dialect string

const (
	// DialectLegacy renders filtered queries with and/or/term filters. It is
	// the wire form of CompiledQuery.MarshalJSON and is not sent to a cluster.
	DialectLegacy Dialect = "legacy"
	// DialectBool renders bool queries, as understood by Elasticsearch 5
	// and later.
	DialectBool Dialect = "bool"
)

// ParseDialect validates a dialect name. The empty name is legacy.
func ParseDialect(name string) (Dialect, error) {
	switch Dialect(name) {
	case "", DialectLegacy:
		return DialectLegacy, nil
	case DialectBool:
		return DialectBool, nil
	}
	return "", fmt.Errorf("unknown elasticsearch dialect %q", name)
}

// MarshalJSON renders the legacy dialect.
func (q *CompiledQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Source(DialectLegacy))
}

// MarshalElastic renders q as an Elasticsearch search body.
func MarshalElastic(q *CompiledQuery, d Dialect) ([]byte, error) {
	return json.Marshal(q.Source(d))
}

// Source returns the search body for d as a JSON-ready map.
func (q *CompiledQuery) Source(d Dialect) map[string]any {
	aggs := make(map[string]any, len(q.Aggregations))
	for _, a := range q.Aggregations {
		aggs[a.Name] = map[string]any{"terms": map[string]any{"field": a.Field}}
	}

	body := map[string]any{"aggregations": aggs}
	switch d {
	case DialectBool:
		boolQuery := map[string]any{"must": textSource(q.Text)}
		if q.Filter != nil {
			boolQuery["filter"] = FilterSource(q.Filter, d)
		}
		body["query"] = map[string]any{"bool": boolQuery}
		if q.PostFilter != nil {
			body["post_filter"] = FilterSource(q.PostFilter, d)
		}
	default:
		body["query"] = map[string]any{
			"filtered": map[string]any{
				"filter": FilterSource(q.Filter, d),
				"query":  textSource(q.Text),
			},
		}
		body["post_filter"] = FilterSource(q.PostFilter, d)
	}

	if q.From != nil {
		body["from"] = *q.From
	}
	if q.Size != nil {
		body["size"] = *q.Size
	}
	return body
}

func textSource(t TextQuery) map[string]any {
	if t.MatchAll() {
		return map[string]any{"match_all": map[string]any{}}
	}
	should := make([]any, 0, len(t.Fields))
	for _, f := range t.Fields {
		m := map[string]any{"query": t.Text}
		if f.Boost != 0 && f.Boost != 1 {
			m["boost"] = f.Boost
		}
		if f.Fuzziness > 0 {
			m["fuzziness"] = f.Fuzziness
		}
		should = append(should, map[string]any{"match": map[string]any{f.Field: m}})
	}
	return map[string]any{"bool": map[string]any{"should": should}}
}

// FilterSource renders a filter expression. A nil expression renders as an
// empty object in the legacy dialect and match_all in the bool dialect.
func FilterSource(e Expr, d Dialect) map[string]any {
	switch n := e.(type) {
	case Leaf:
		return leafSource(n.Filter, d)
	case And:
		members := childSources(n, d)
		if d == DialectBool {
			return map[string]any{"bool": map[string]any{"filter": members}}
		}
		return map[string]any{"and": members}
	case Or:
		members := childSources(n, d)
		if d == DialectBool {
			return map[string]any{"bool": map[string]any{"should": members, "minimum_should_match": 1}}
		}
		return map[string]any{"or": members}
	}
	if d == DialectBool {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{}
}

func childSources[T ~[]Expr](members T, d Dialect) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = FilterSource(m, d)
	}
	return out
}

func leafSource(f Filter, d Dialect) map[string]any {
	switch {
	case f.Op == Equals && len(f.Values) == 1:
		return map[string]any{"term": map[string]any{f.Field: f.Values[0]}}
	case f.Op != Range:
		values := f.Values
		if values == nil {
			values = []string{}
		}
		return map[string]any{"terms": map[string]any{f.Field: values}}
	}

	from, to := "from", "to"
	if d == DialectBool {
		from, to = "gte", "lte"
	}
	bounds := map[string]any{}
	if f.From != nil {
		bounds[from] = *f.From
	}
	if f.To != nil {
		bounds[to] = *f.To
	}
	return map[string]any{"range": map[string]any{f.Field: bounds}}
}
