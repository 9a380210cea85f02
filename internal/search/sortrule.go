package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/store"
)

// sortRule orders the universe by the stored value of one field. Each bucket
// is the set of documents sharing a value; documents missing the field form
// the final bucket.
type sortRule struct {
	field     string
	fid       store.FieldID
	ascending bool

	query       *Query
	groups      []store.ValueGroup
	next        int
	restEmitted bool
}

// NewSortRule builds a sort-by-field ranking rule. The field must already be
// validated against the index.
func NewSortRule(field string, fid store.FieldID, ascending bool) RankingRule {
	return &sortRule{field: field, fid: fid, ascending: ascending}
}

var _ RankingRule = (*sortRule)(nil)

func (r *sortRule) ID() string {
	if r.ascending {
		return "sort:" + r.field + ":asc"
	}
	return "sort:" + r.field + ":desc"
}

func (r *sortRule) StartIteration(ctx *Context, _ SearchLogger, _ *roaring.Bitmap, query *Query) error {
	groups, err := ctx.Txn.OrderedFieldValues(r.fid, r.ascending)
	if err != nil {
		return err
	}
	r.groups = groups
	r.next = 0
	r.restEmitted = false
	r.query = query
	return nil
}

func (r *sortRule) NextBucket(ctx *Context, _ SearchLogger, universe *roaring.Bitmap) (*Bucket, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	for r.next < len(r.groups) {
		g := r.groups[r.next]
		r.next++
		candidates := roaring.And(g.Docids, universe)
		if candidates.IsEmpty() {
			continue
		}
		return &Bucket{
			Candidates: candidates,
			Score: SortScore{
				Field:     r.field,
				Ascending: r.ascending,
				Value:     g.Value,
				HasValue:  true,
			},
			Query: r.query,
		}, nil
	}

	// Documents without the field sort last, all tied.
	if !r.restEmitted {
		r.restEmitted = true
		if !universe.IsEmpty() {
			return &Bucket{
				Candidates: universe.Clone(),
				Score:      SortScore{Field: r.field, Ascending: r.ascending},
				Query:      r.query,
			}, nil
		}
	}
	return nil, nil
}

func (r *sortRule) EndIteration(*Context, SearchLogger) {
	r.groups = nil
	r.query = nil
}
