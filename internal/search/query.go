package search

import "github.com/strand-search/strand/internal/analyzer"

// Query is the (possibly narrowed) sub-query a ranking rule iterates over.
// A nil or empty term list is a placeholder query: no term constraints, only
// sort-style rules apply.
type Query struct {
	Terms []*analyzer.LocatedQueryTerm
}

// IsPlaceholder reports whether the query carries no terms.
func (q *Query) IsPlaceholder() bool {
	return q == nil || len(q.Terms) == 0
}

// Truncate returns a query keeping only the first n terms.
// Used by the words rule to narrow the sub-query fed to tie-breaking rules.
func (q *Query) Truncate(n int) *Query {
	if q.IsPlaceholder() || n >= len(q.Terms) {
		return q
	}
	return &Query{Terms: q.Terms[:n]}
}
