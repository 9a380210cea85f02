package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	strerrors "github.com/strand-search/strand/internal/errors"
	"github.com/strand-search/strand/internal/store"
)

// BucketSortOutput is the ranked result handed to the formatter.
type BucketSortOutput struct {
	// Docids holds at most length ids, in final ranked order.
	Docids []uint32

	// Scores is parallel to Docids; Scores[i] has one entry per rule
	// level Docids[i] was emitted at.
	Scores [][]ScoreDetails

	// AllCandidates is the initial universe minus the documents the distinct
	// filter excluded, used downstream for facet counts and total estimates.
	AllCandidates *roaring.Bitmap
}

// BucketSort drives the ranking rule stack over universe and collects the
// page [from, from+length).
func BucketSort(
	ctx *Context,
	rules []RankingRule,
	query *Query,
	universe *roaring.Bitmap,
	from, length int,
	strategy ScoringStrategy,
	logger SearchLogger,
) (*BucketSortOutput, error) {
	logger.InitialQuery(query)
	logger.RankingRules(rules)
	logger.InitialUniverse(universe)

	var distinctFid store.FieldID
	hasDistinct := false
	if field, ok, err := ctx.Txn.DistinctField(); err != nil {
		return nil, err
	} else if ok {
		if fid, found, err := ctx.Txn.FieldID(field); err != nil {
			return nil, err
		} else if found {
			distinctFid, hasDistinct = fid, true
		}
	}

	if universe.GetCardinality() < uint64(from) {
		return &BucketSortOutput{AllCandidates: universe.Clone()}, nil
	}

	if len(rules) == 0 {
		return sortWithoutRules(ctx, universe, from, length, distinctFid, hasDistinct)
	}

	s := &bucketSorter{
		ctx:           ctx,
		logger:        logger,
		rules:         rules,
		universes:     make([]*roaring.Bitmap, len(rules)),
		allCandidates: universe.Clone(),
		from:          from,
		length:        length,
		strategy:      strategy,
		distinctFid:   distinctFid,
		hasDistinct:   hasDistinct,
	}
	for i := range s.universes {
		s.universes[i] = roaring.New()
	}
	s.universes[0] = universe.Clone()

	logger.StartIterationRankingRule(0, rules[0], query, universe)
	if err := rules[0].StartIteration(ctx, logger, universe, query); err != nil {
		return nil, err
	}

	if err := s.run(); err != nil {
		return nil, err
	}

	return &BucketSortOutput{
		Docids:        s.validDocids,
		Scores:        s.validScores,
		AllCandidates: s.allCandidates,
	}, nil
}

// sortWithoutRules handles the empty rule list: ascending id order, with or
// without distinct.
func sortWithoutRules(
	ctx *Context,
	universe *roaring.Bitmap,
	from, length int,
	distinctFid store.FieldID,
	hasDistinct bool,
) (*BucketSortOutput, error) {
	if !hasDistinct {
		docids := make([]uint32, 0, length)
		it := universe.Iterator()
		skipped := 0
		for it.HasNext() && len(docids) < length {
			id := it.Next()
			if skipped < from {
				skipped++
				continue
			}
			docids = append(docids, id)
		}
		return &BucketSortOutput{
			Docids:        docids,
			Scores:        emptyScores(len(docids)),
			AllCandidates: universe.Clone(),
		}, nil
	}

	excluded := roaring.New()
	var results []uint32
	it := universe.Iterator()
	for it.HasNext() {
		if len(results) >= from+length {
			break
		}
		docid := it.Next()
		if excluded.Contains(docid) {
			continue
		}
		if err := distinctSingleDocid(ctx, distinctFid, docid, excluded); err != nil {
			return nil, err
		}
		results = append(results, docid)
	}
	if from < len(results) {
		results = results[from:]
	} else {
		results = nil
	}

	allCandidates := roaring.AndNot(universe, excluded)
	return &BucketSortOutput{
		Docids:        results,
		Scores:        emptyScores(len(results)),
		AllCandidates: allCandidates,
	}, nil
}

func emptyScores(n int) [][]ScoreDetails {
	scores := make([][]ScoreDetails, n)
	for i := range scores {
		scores[i] = []ScoreDetails{}
	}
	return scores
}

// bucketSorter is the manual descend/back-off stack of the driver. Keeping
// it iterative bounds stack depth on long rule lists and gives a single
// cancellation poll point per iteration.
type bucketSorter struct {
	ctx    *Context
	logger SearchLogger
	rules  []RankingRule

	universes []*roaring.Bitmap
	scores    []ScoreDetails
	cur       int

	allCandidates *roaring.Bitmap
	validDocids   []uint32
	validScores   [][]ScoreDetails
	curOffset     int

	from, length int
	strategy     ScoringStrategy

	distinctFid store.FieldID
	hasDistinct bool
}

func (s *bucketSorter) run() error {
	for len(s.validDocids) < s.length {
		if err := s.ctx.CheckCancelled(); err != nil {
			return err
		}

		// An empty universe needs no sorting; under Skip a singleton
		// bucket is already fully identified. Either way, flush the
		// level and yield control to the parent rule.
		if s.universes[s.cur].IsEmpty() ||
			(s.strategy == ScoringSkip && s.universes[s.cur].GetCardinality() == 1) {
			bucket := s.universes[s.cur]
			s.universes[s.cur] = roaring.New()
			if err := s.maybeAddToResults(bucket); err != nil {
				return err
			}
			done, err := s.back()
			if err != nil {
				return err
			}
			if done {
				break
			}
			continue
		}

		bucket, err := s.rules[s.cur].NextBucket(s.ctx, s.logger, s.universes[s.cur])
		if err != nil {
			return err
		}
		if bucket == nil {
			done, err := s.back()
			if err != nil {
				return err
			}
			if done {
				break
			}
			continue
		}

		s.scores = append(s.scores, bucket.Score)

		s.logger.NextBucketRankingRule(s.cur, s.rules[s.cur], s.universes[s.cur], bucket.Candidates)

		if !isSuperset(s.universes[s.cur], bucket.Candidates) {
			return strerrors.Internal(
				"the ranking rule %s emitted a bucket outside its universe", s.rules[s.cur].ID())
		}
		s.universes[s.cur].AndNot(bucket.Candidates)

		// Emit without descending when tie-breaking cannot matter: this
		// is the last rule, the bucket is trivial under Skip, or the whole
		// bucket lands before the requested page.
		if s.cur == len(s.rules)-1 ||
			(s.strategy == ScoringSkip && bucket.Candidates.GetCardinality() <= 1) ||
			s.curOffset+int(bucket.Candidates.GetCardinality()) < s.from {
			if err := s.maybeAddToResults(bucket.Candidates); err != nil {
				return err
			}
			s.scores = s.scores[:len(s.scores)-1]
			continue
		}

		s.cur++
		s.universes[s.cur] = bucket.Candidates.Clone()
		s.logger.StartIterationRankingRule(s.cur, s.rules[s.cur], bucket.Query, s.universes[s.cur])
		if err := s.rules[s.cur].StartIteration(s.ctx, s.logger, bucket.Candidates, bucket.Query); err != nil {
			return err
		}
	}
	return nil
}

// back finishes iterating the current rule and yields control to the parent,
// or reports completion at the bottom of the stack. The universes and the
// score prefix shrink accordingly.
func (s *bucketSorter) back() (done bool, err error) {
	if !s.universes[s.cur].IsEmpty() {
		return false, strerrors.Internal(
			"the ranking rule %s did not sort its bucket exhaustively", s.rules[s.cur].ID())
	}
	s.logger.EndIterationRankingRule(s.cur, s.rules[s.cur], s.universes[s.cur])
	s.universes[s.cur] = roaring.New()
	s.rules[s.cur].EndIteration(s.ctx, s.logger)
	if s.cur == 0 {
		return true, nil
	}
	s.cur--
	// Truncate the score prefix to exactly the surviving stack depth.
	if len(s.scores) > s.cur {
		s.scores = s.scores[:s.cur]
	}
	return false, nil
}

// maybeAddToResults feeds a bucket into the page window: applies distinct,
// tracks allCandidates, then skips or emits according to from/length.
func (s *bucketSorter) maybeAddToResults(candidates *roaring.Bitmap) error {
	effective := candidates
	if s.hasDistinct {
		out, err := applyDistinctRule(s.ctx, s.distinctFid, candidates)
		if err != nil {
			return err
		}
		// Excluded documents can never be emitted by any live level.
		for _, u := range s.universes {
			u.AndNot(out.Excluded)
		}
		s.allCandidates.AndNot(out.Excluded)
		effective = out.Remaining
	}
	s.allCandidates.Or(effective)

	if effective.IsEmpty() {
		return nil
	}

	size := int(effective.GetCardinality())
	switch {
	case s.curOffset < s.from && s.curOffset+size < s.from:
		// The whole bucket lands before the page.
		s.logger.SkipBucketRankingRule(s.cur, s.rules[s.cur], effective)

	case s.curOffset < s.from:
		// Skip the head of the bucket, emit from the boundary on.
		toSkip := s.from - s.curOffset
		skipped := roaring.New()
		it := effective.Iterator()
		for i := 0; i < toSkip && it.HasNext(); i++ {
			skipped.Add(it.Next())
		}
		s.logger.SkipBucketRankingRule(s.cur, s.rules[s.cur], skipped)

		var emitted []uint32
		for it.HasNext() && len(s.validDocids)+len(emitted) < s.length {
			emitted = append(emitted, it.Next())
		}
		s.emit(emitted)

	default:
		var emitted []uint32
		it := effective.Iterator()
		for it.HasNext() && len(s.validDocids)+len(emitted) < s.length {
			emitted = append(emitted, it.Next())
		}
		s.emit(emitted)
	}

	s.curOffset += size
	return nil
}

func (s *bucketSorter) emit(docids []uint32) {
	if len(docids) == 0 {
		return
	}
	s.logger.AddToResults(docids)
	s.validDocids = append(s.validDocids, docids...)
	for range docids {
		score := make([]ScoreDetails, len(s.scores))
		copy(score, s.scores)
		s.validScores = append(s.validScores, score)
	}
}

func isSuperset(super, sub *roaring.Bitmap) bool {
	return roaring.AndNot(sub, super).IsEmpty()
}
