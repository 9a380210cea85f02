package search

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/analyzer"
)

// typoSpec ranks documents by the total number of typos tolerated across the
// matched variants: edge cost = typo count of the variant set matched for
// that term.
type typoSpec struct{}

// NewTypoRule builds the typo ranking rule.
func NewTypoRule() RankingRule { return NewGraphRule(typoSpec{}) }

func (typoSpec) id() string { return "typo" }

func (typoSpec) hopEdges(_ *Context, _, to *analyzer.LocatedQueryTerm) ([]specEdge, error) {
	edges := []specEdge{{
		cost: 0,
		cond: &condition{key: "typo0:" + termKey(to), term: to, param: 0},
	}}
	for n := 1; n <= to.MaxTypos; n++ {
		if len(to.WordsAtTypo(n)) == 0 {
			continue
		}
		edges = append(edges, specEdge{
			cost: uint32(n),
			cond: &condition{key: fmt.Sprintf("typo%d:%s", n, termKey(to)), term: to, param: n},
		})
	}
	return edges, nil
}

func (typoSpec) resolve(ctx *Context, cond *condition, _ *roaring.Bitmap) (*roaring.Bitmap, error) {
	return unionWordDocids(ctx, cond.term.WordsAtTypo(cond.param))
}

func (typoSpec) maxCost(terms []*analyzer.LocatedQueryTerm) uint32 {
	var budget uint32
	for _, t := range terms {
		budget += uint32(t.MaxTypos)
	}
	return budget + 1
}

func (typoSpec) scoreForCost(cost, maxCost uint32) ScoreDetails {
	return TypoScore{
		TypoCount:    int(cost),
		MaxTypoCount: int(maxCost - 1),
	}
}
