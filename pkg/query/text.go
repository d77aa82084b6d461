package query

import "github.com/rubiojr/datacatalog/pkg/catalog"

// FieldMatch is one weighted field of a text query. Boost is relative to
// the other fields; Fuzziness is the edit distance tolerated, zero for
// exact term matching.
type FieldMatch struct {
	Field     string
	Boost     float64
	Fuzziness int
}

// TextQuery matches free text against several fields. A TextQuery with no
// fields matches every entry.
type TextQuery struct {
	Text   string
	Fields []FieldMatch
}

// MatchAll reports whether q places no text restriction.
func (q TextQuery) MatchAll() bool {
	return len(q.Fields) == 0
}

// BuildTextQuery returns the text clause for text. Title ranks highest and
// is the only fuzzy field, then dataSample, then sourceUri.
func BuildTextQuery(text string) TextQuery {
	if text == "" {
		return TextQuery{}
	}
	return TextQuery{
		Text: text,
		Fields: []FieldMatch{
			{Field: catalog.FieldTitle, Boost: 3, Fuzziness: 1},
			{Field: catalog.FieldDataSample, Boost: 2},
			{Field: catalog.FieldSourceURI, Boost: 1},
		},
	}
}
