package search

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/analyzer"
)

// condition is a primitive predicate over documents, used as an edge label
// in a rule graph. It resolves to a bitmap scoped to a universe.
type condition struct {
	// key is a stable content key: equal keys resolve identically against
	// the same snapshot, so the cross-query cache can share work.
	key string

	// term is the right-hand query term of the edge.
	term *analyzer.LocatedQueryTerm

	// prev is the left-hand term for pair conditions (proximity).
	prev *analyzer.LocatedQueryTerm

	// param carries the rule-specific cost discriminant: typo count,
	// proximity distance, field id, or exactness flag.
	param int
}

// specEdge is one labeled edge between consecutive graph nodes.
// A nil condition is unconditioned: it constrains nothing.
type specEdge struct {
	cost uint32
	cond *condition
}

// graphSpec is the per-rule plug-in of the shared graph machinery: it
// synthesizes the edges between term nodes, resolves conditions to bitmaps,
// and maps path costs to scores.
type graphSpec interface {
	id() string

	// hopEdges returns the multi-edges for the hop reaching `to`.
	// `from` is nil on the hop out of the source node.
	hopEdges(ctx *Context, from, to *analyzer.LocatedQueryTerm) ([]specEdge, error)

	// resolve computes the condition's documents within universe.
	resolve(ctx *Context, cond *condition, universe *roaring.Bitmap) (*roaring.Bitmap, error)

	// maxCost is the theoretical worst path cost for the query; real paths
	// cost strictly less, and the catch-all bucket uses exactly maxCost.
	maxCost(terms []*analyzer.LocatedQueryTerm) uint32

	// scoreForCost maps a bucket cost to this rule's ScoreDetails.
	scoreForCost(cost, maxCost uint32) ScoreDetails
}

// earlyExiter lets a spec terminate paths before the sink, paying a cost for
// the unmatched remainder. The words rule uses this to model dropping
// trailing words.
type earlyExiter interface {
	earlyExitCost(matched, total int) (uint32, bool)
}

// queryNarrower lets a spec narrow the sub-query attached to a bucket, so
// tie-breaking rules only consider the terms the bucket actually matched.
type queryNarrower interface {
	narrowQuery(cost uint32, q *Query) *Query
}

// costBucket is one pre-computed bucket: the union of all paths of one cost.
type costBucket struct {
	cost   uint32
	docids *roaring.Bitmap
}

// GraphRule adapts a graphSpec into a RankingRule.
//
// At StartIteration it runs a bitmap DP along the query-term chain: the
// frontier at node k maps accumulated path cost to the documents matching
// the first k terms at that cost. Two paths of equal cost are
// indistinguishable to the rule, so each total cost yields one bucket: the
// union of its paths' document sets. NextBucket then serves buckets in
// ascending cost, re-scoped to the live universe.
type GraphRule struct {
	spec graphSpec

	query       *Query
	buckets     []costBucket
	next        int
	max         uint32
	restEmitted bool
}

// NewGraphRule wraps spec into a ranking rule.
func NewGraphRule(spec graphSpec) *GraphRule {
	return &GraphRule{spec: spec}
}

var _ RankingRule = (*GraphRule)(nil)

// ID implements RankingRule.
func (g *GraphRule) ID() string { return g.spec.id() }

// StartIteration implements RankingRule.
func (g *GraphRule) StartIteration(ctx *Context, _ SearchLogger, universe *roaring.Bitmap, query *Query) error {
	g.query = query
	g.buckets = nil
	g.next = 0
	g.restEmitted = false

	if query.IsPlaceholder() {
		// No terms to grade: everything ties at the best rank.
		g.max = 0
		g.buckets = []costBucket{{cost: 0, docids: universe.Clone()}}
		return nil
	}

	terms := query.Terms
	g.max = g.spec.maxCost(terms)

	// Per-iteration memo of resolved conditions, on top of the
	// cross-query cache. Handles come from the interner so equal
	// conditions share one resolution.
	conds := NewInterner[string]()
	resolved := map[Interned]*roaring.Bitmap{}

	resolveEdge := func(cond *condition) (*roaring.Bitmap, error) {
		h := conds.Insert(cond.key)
		if bm, ok := resolved[h]; ok {
			return bm, nil
		}
		bm, err := ctx.resolveCached(g.spec.id(), cond.key, universe, func() (*roaring.Bitmap, error) {
			return g.spec.resolve(ctx, cond, universe)
		})
		if err != nil {
			return nil, err
		}
		bm.And(universe)
		resolved[h] = bm
		return bm, nil
	}

	frontier := map[uint32]*roaring.Bitmap{0: universe.Clone()}
	results := map[uint32]*roaring.Bitmap{}
	accumulate := func(into map[uint32]*roaring.Bitmap, cost uint32, bm *roaring.Bitmap) {
		if acc, ok := into[cost]; ok {
			acc.Or(bm)
		} else {
			into[cost] = bm.Clone()
		}
	}

	ee, hasEarlyExit := g.spec.(earlyExiter)

	for i, term := range terms {
		if err := ctx.CheckCancelled(); err != nil {
			return err
		}

		var from *analyzer.LocatedQueryTerm
		if i > 0 {
			from = terms[i-1]
		}
		edges, err := g.spec.hopEdges(ctx, from, term)
		if err != nil {
			return err
		}

		next := map[uint32]*roaring.Bitmap{}
		for cost, bm := range frontier {
			for _, e := range edges {
				var step *roaring.Bitmap
				if e.cond == nil {
					step = bm.Clone()
				} else {
					docids, err := resolveEdge(e.cond)
					if err != nil {
						return err
					}
					step = roaring.And(bm, docids)
				}
				if step.IsEmpty() {
					continue
				}
				accumulate(next, cost+e.cost, step)
			}
		}
		frontier = next

		if hasEarlyExit && i+1 < len(terms) {
			if exitCost, ok := ee.earlyExitCost(i+1, len(terms)); ok {
				for cost, bm := range frontier {
					accumulate(results, cost+exitCost, bm)
				}
			}
		}
	}
	for cost, bm := range frontier {
		accumulate(results, cost, bm)
	}

	g.buckets = make([]costBucket, 0, len(results))
	for cost, bm := range results {
		g.buckets = append(g.buckets, costBucket{cost: cost, docids: bm})
	}
	sort.Slice(g.buckets, func(i, j int) bool { return g.buckets[i].cost < g.buckets[j].cost })
	return nil
}

// NextBucket implements RankingRule.
func (g *GraphRule) NextBucket(ctx *Context, _ SearchLogger, universe *roaring.Bitmap) (*Bucket, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	for g.next < len(g.buckets) {
		b := g.buckets[g.next]
		g.next++
		candidates := roaring.And(b.docids, universe)
		if candidates.IsEmpty() {
			continue
		}
		q := g.query
		if n, ok := g.spec.(queryNarrower); ok {
			q = n.narrowQuery(b.cost, g.query)
		}
		return &Bucket{
			Candidates: candidates,
			Score:      g.spec.scoreForCost(b.cost, g.max),
			Query:      q,
		}, nil
	}

	// Cost buckets may not cover every candidate (a document can match no
	// path at all). One final bucket at the worst rank keeps the
	// exhaustion contract: after it, the universe is empty.
	if !g.restEmitted {
		g.restEmitted = true
		if !universe.IsEmpty() {
			return &Bucket{
				Candidates: universe.Clone(),
				Score:      g.spec.scoreForCost(g.max, g.max),
				Query:      g.query,
			}, nil
		}
	}
	return nil, nil
}

// EndIteration implements RankingRule.
func (g *GraphRule) EndIteration(*Context, SearchLogger) {
	g.buckets = nil
	g.query = nil
	g.next = 0
}
