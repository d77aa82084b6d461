package store

import (
	"fmt"
	"strings"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/query"
)

// ftsColumns is the column order of entries_fts.
var ftsColumns = []string{catalog.FieldTitle, catalog.FieldDataSample, catalog.FieldSourceURI}

// textSource returns the FROM clause for a text query. Every variant
// exposes the entry as e and a score column, lower is better.
func textSource(t query.TextQuery) (string, []any) {
	if t.MatchAll() {
		return "entries e, (SELECT 0.0 AS score) r", nil
	}
	match := ftsMatch(t)
	if match == "" {
		return "(SELECT id, doc FROM entries WHERE 0) e, (SELECT 0.0 AS score) r", nil
	}

	boosts := make(map[string]float64, len(t.Fields))
	for _, f := range t.Fields {
		boosts[f.Field] = f.Boost
	}
	weights := make([]string, len(ftsColumns))
	for i, col := range ftsColumns {
		weights[i] = fmt.Sprintf("%g", boosts[col])
	}

	return `entries e JOIN (
		SELECT rowid AS rid, bm25(entries_fts, ` + strings.Join(weights, ", ") + `) AS score
		FROM entries_fts WHERE entries_fts MATCH ?
	) m ON m.rid = e.rowid`, []any{match}
}

// ftsMatch builds an FTS5 query matching any word of the text in the
// queried columns. Words are quoted so FTS5 operators in user input are
// taken literally.
func ftsMatch(t query.TextQuery) string {
	words := strings.Fields(t.Text)
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	cols := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		cols = append(cols, f.Field)
	}
	return "{" + strings.Join(cols, " ") + "} : (" + strings.Join(quoted, " OR ") + ")"
}

// compileExpr renders a filter expression as a SQL condition over e.
func compileExpr(e query.Expr) (string, []any, error) {
	switch n := e.(type) {
	case nil:
		return "1", nil, nil
	case query.Leaf:
		return compileFilter(n.Filter)
	case query.And:
		return compileGroup(n, " AND ", "1")
	case query.Or:
		return compileGroup(n, " OR ", "0")
	}
	return "", nil, fmt.Errorf("%w: unsupported filter node %T", ErrBadRequest, e)
}

func compileGroup[T ~[]query.Expr](members T, op, empty string) (string, []any, error) {
	if len(members) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(members))
	var args []any
	for _, m := range members {
		cond, a, err := compileExpr(m)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, cond)
		args = append(args, a...)
	}
	return "(" + strings.Join(parts, op) + ")", args, nil
}

func compileFilter(f query.Filter) (string, []any, error) {
	if f.Op == query.Range {
		path, err := jsonPath(f.Field)
		if err != nil {
			return "", nil, err
		}
		raw := "json_extract(e.doc, '" + path + "')"
		var conds []string
		var args []any
		if f.From != nil {
			conds = append(conds, raw+" >= ?")
			args = append(args, *f.From)
		}
		if f.To != nil {
			conds = append(conds, raw+" <= ?")
			args = append(args, *f.To)
		}
		if len(conds) == 0 {
			return "1", nil, nil
		}
		return "(" + strings.Join(conds, " AND ") + ")", args, nil
	}

	expr, err := valueExpr(f.Field)
	if err != nil {
		return "", nil, err
	}
	switch len(f.Values) {
	case 0:
		return "0", nil, nil
	case 1:
		return expr + " = ?", []any{f.Values[0]}, nil
	}
	args := make([]any, len(f.Values))
	for i, v := range f.Values {
		args[i] = v
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	return expr + " IN (" + marks + ")", args, nil
}

// valueExpr renders a field as lowercase text, with JSON booleans as
// "true" and "false", the same normalization filter values go through.
func valueExpr(field string) (string, error) {
	path, err := jsonPath(field)
	if err != nil {
		return "", err
	}
	return "CASE json_type(e.doc, '" + path + "')" +
		" WHEN 'true' THEN 'true' WHEN 'false' THEN 'false'" +
		" ELSE lower(CAST(json_extract(e.doc, '" + path + "') AS TEXT)) END", nil
}

// jsonPath only accepts entry fields, which keeps the literal path safe to
// inline.
func jsonPath(field string) (string, error) {
	if !catalog.IsIndexedField(field) {
		return "", fmt.Errorf("%w: unknown field %q", ErrBadRequest, field)
	}
	return "$." + field, nil
}
