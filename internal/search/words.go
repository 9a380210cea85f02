package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/analyzer"
)

// wordsSpec ranks documents by how many query words they contain, dropping
// words from the end of the query: bucket cost c holds the documents
// matching the first n-c terms. The early-exit edges model the drop.
type wordsSpec struct{}

// NewWordsRule builds the words ranking rule.
func NewWordsRule() RankingRule { return NewGraphRule(wordsSpec{}) }

func (wordsSpec) id() string { return "words" }

func (wordsSpec) hopEdges(_ *Context, _, to *analyzer.LocatedQueryTerm) ([]specEdge, error) {
	return []specEdge{{
		cost: 0,
		cond: &condition{key: "present:" + termKey(to), term: to},
	}}, nil
}

func (wordsSpec) resolve(ctx *Context, cond *condition, _ *roaring.Bitmap) (*roaring.Bitmap, error) {
	return unionWordDocids(ctx, cond.term.AllWords())
}

func (wordsSpec) maxCost(terms []*analyzer.LocatedQueryTerm) uint32 {
	return uint32(len(terms))
}

func (wordsSpec) scoreForCost(cost, maxCost uint32) ScoreDetails {
	return WordsScore{
		MatchingWords:    int(maxCost - cost),
		MaxMatchingWords: int(maxCost),
	}
}

// earlyExitCost prices a path that stops after matching the first `matched`
// terms: one unit per dropped trailing word.
func (wordsSpec) earlyExitCost(matched, total int) (uint32, bool) {
	if matched < 1 {
		return 0, false
	}
	return uint32(total - matched), true
}

// narrowQuery trims the dropped trailing words so tie-breaking rules only
// grade the words this bucket actually matched.
func (wordsSpec) narrowQuery(cost uint32, q *Query) *Query {
	if q.IsPlaceholder() {
		return q
	}
	return q.Truncate(len(q.Terms) - int(cost))
}
