package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/analyzer"
)

// exactnessSpec distinguishes matching the query word itself (cost 0) from
// matching through a typo or prefix variant (cost 1); buckets order by total
// inexactness.
type exactnessSpec struct{}

// NewExactnessRule builds the exactness ranking rule.
func NewExactnessRule() RankingRule { return NewGraphRule(exactnessSpec{}) }

func (exactnessSpec) id() string { return "exactness" }

func (exactnessSpec) hopEdges(_ *Context, _, to *analyzer.LocatedQueryTerm) ([]specEdge, error) {
	return []specEdge{
		{
			cost: 0,
			cond: &condition{key: "exact:" + termKey(to), term: to, param: 0},
		},
		{
			cost: 1,
			cond: &condition{key: "variant:" + termKey(to), term: to, param: 1},
		},
	}, nil
}

func (exactnessSpec) resolve(ctx *Context, cond *condition, _ *roaring.Bitmap) (*roaring.Bitmap, error) {
	if cond.param == 0 {
		return ctx.Txn.WordDocids(cond.term.Word)
	}
	return unionWordDocids(ctx, cond.term.AllWords())
}

func (exactnessSpec) maxCost(terms []*analyzer.LocatedQueryTerm) uint32 {
	return uint32(len(terms)) + 1
}

func (exactnessSpec) scoreForCost(cost, maxCost uint32) ScoreDetails {
	return RankScore{
		Rule:    "exactness",
		Rank:    int(maxCost - cost),
		MaxRank: int(maxCost),
	}
}
