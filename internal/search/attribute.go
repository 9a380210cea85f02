package search

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/analyzer"
	"github.com/strand-search/strand/internal/store"
)

// attributeSpec ranks documents by where the query terms occur: matching in
// a more important searchable attribute (lower index) costs less.
type attributeSpec struct{}

// NewAttributeRule builds the attribute ranking rule.
func NewAttributeRule() RankingRule { return NewGraphRule(attributeSpec{}) }

func (attributeSpec) id() string { return "attribute" }

func (attributeSpec) hopEdges(ctx *Context, _, to *analyzer.LocatedQueryTerm) ([]specEdge, error) {
	fields := ctx.Txn.SearchableFields()
	edges := make([]specEdge, 0, len(fields))
	for rank, fid := range fields {
		if rank > maxAttributeRank-1 {
			rank = maxAttributeRank - 1
		}
		edges = append(edges, specEdge{
			cost: uint32(rank),
			cond: &condition{
				key:   fmt.Sprintf("field%d:%s", fid, termKey(to)),
				term:  to,
				param: int(fid),
			},
		})
	}
	return edges, nil
}

func (attributeSpec) resolve(ctx *Context, cond *condition, _ *roaring.Bitmap) (*roaring.Bitmap, error) {
	out := roaring.New()
	for _, w := range cond.term.AllWords() {
		bm, err := ctx.Txn.WordFieldDocids(w, store.FieldID(cond.param))
		if err != nil {
			return nil, err
		}
		out.Or(bm)
	}
	return out, nil
}

func (attributeSpec) maxCost(terms []*analyzer.LocatedQueryTerm) uint32 {
	// The per-iteration field count is not known here; grade against the
	// worst case of every term matching only the least important field.
	// StartIteration resolves edges against the live field list, so real
	// costs stay below this bound.
	return uint32(maxAttributeRank*len(terms)) + 1
}

// maxAttributeRank bounds the attribute index used for rank normalization.
const maxAttributeRank = 8

func (attributeSpec) scoreForCost(cost, maxCost uint32) ScoreDetails {
	return RankScore{
		Rule:    "attribute",
		Rank:    int(maxCost - cost),
		MaxRank: int(maxCost),
	}
}
