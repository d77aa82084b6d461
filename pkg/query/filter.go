// Package query compiles catalog search requests into backend queries.
//
// A request is a free-text string plus field filters. The FilterExtractor
// seeds ownership and visibility constraints from the caller's
// authorization context and decides, per clause, whether it restricts the
// search itself or only the returned hits (post-filter, which leaves facet
// counts untouched). The Translator glues the pieces into a CompiledQuery
// that store backends render for their engine.
package query

import "fmt"

// Op is the comparison a Filter performs.
type Op int

const (
	// Equals matches a single value.
	Equals Op = iota
	// AnyOf matches any of Values. An empty AnyOf matches nothing.
	AnyOf
	// Range matches values between From and To, inclusive. A nil bound is
	// open on that side.
	Range
)

func (o Op) String() string {
	switch o {
	case Equals:
		return "equals"
	case AnyOf:
		return "any-of"
	case Range:
		return "range"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Filter is a single field constraint.
type Filter struct {
	Field  string
	Op     Op
	Values []string
	From   *string
	To     *string
}

// Eq returns an Equals filter.
func Eq(field, value string) Filter {
	return Filter{Field: field, Op: Equals, Values: []string{value}}
}

// In returns an AnyOf filter.
func In(field string, values ...string) Filter {
	return Filter{Field: field, Op: AnyOf, Values: values}
}

// Between returns a Range filter. Pass nil for an open bound.
func Between(field string, from, to *string) Filter {
	return Filter{Field: field, Op: Range, From: from, To: to}
}

// Match picks Equals for one value and AnyOf otherwise.
func Match(field string, values ...string) Filter {
	if len(values) == 1 {
		return Eq(field, values[0])
	}
	return In(field, values...)
}

// Expr is a node of a filter expression tree: And, Or or Leaf. A nil Expr
// places no restriction.
type Expr interface {
	expr()
}

// Leaf wraps a single Filter.
type Leaf struct {
	Filter
}

// And matches when every member matches.
type And []Expr

// Or matches when at least one member matches.
type Or []Expr

func (Leaf) expr() {}
func (And) expr()  {}
func (Or) expr()   {}

// Leaves returns the filters of e in depth-first order.
func Leaves(e Expr) []Filter {
	var out []Filter
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case Leaf:
			out = append(out, n.Filter)
		case And:
			for _, m := range n {
				walk(m)
			}
		case Or:
			for _, m := range n {
				walk(m)
			}
		}
	}
	walk(e)
	return out
}
