package search

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/analyzer"
	"github.com/strand-search/strand/internal/store"
)

// proximitySpec ranks documents by how close consecutive query terms appear:
// the edge between two terms costs their pair proximity minus one, with an
// unconditioned fallback for documents where the pair never co-occurs
// within range.
type proximitySpec struct{}

// NewProximityRule builds the proximity ranking rule.
func NewProximityRule() RankingRule { return NewGraphRule(proximitySpec{}) }

func (proximitySpec) id() string { return "proximity" }

func (proximitySpec) hopEdges(_ *Context, from, to *analyzer.LocatedQueryTerm) ([]specEdge, error) {
	if from == nil {
		// The hop out of the source has no pair to grade.
		return []specEdge{{
			cost: 0,
			cond: &condition{key: "present:" + termKey(to), term: to},
		}}, nil
	}

	edges := make([]specEdge, 0, store.MaxProximity+1)
	for p := 1; p <= store.MaxProximity; p++ {
		edges = append(edges, specEdge{
			cost: uint32(p - 1),
			cond: &condition{
				key:   fmt.Sprintf("pair%d:%s|%s", p, termKey(from), termKey(to)),
				term:  to,
				prev:  from,
				param: p,
			},
		})
	}
	// Pair never within range: the term is still required, at the worst
	// proximity.
	edges = append(edges, specEdge{
		cost: store.MaxProximity,
		cond: &condition{key: "present:" + termKey(to), term: to},
	})
	return edges, nil
}

func (proximitySpec) resolve(ctx *Context, cond *condition, _ *roaring.Bitmap) (*roaring.Bitmap, error) {
	if cond.prev == nil {
		return unionWordDocids(ctx, cond.term.AllWords())
	}
	out := roaring.New()
	for _, left := range cond.prev.AllWords() {
		for _, right := range cond.term.AllWords() {
			bm, err := ctx.Txn.WordPairProximityDocids(left, right, cond.param)
			if err != nil {
				return nil, err
			}
			out.Or(bm)
		}
	}
	return out, nil
}

func (proximitySpec) maxCost(terms []*analyzer.LocatedQueryTerm) uint32 {
	if len(terms) < 2 {
		return 1
	}
	return uint32(store.MaxProximity*(len(terms)-1)) + 1
}

func (proximitySpec) scoreForCost(cost, maxCost uint32) ScoreDetails {
	return RankScore{
		Rule:    "proximity",
		Rank:    int(maxCost - cost),
		MaxRank: int(maxCost),
	}
}
