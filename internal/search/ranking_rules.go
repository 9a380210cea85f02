package search

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Bucket is the unit a ranking rule emits: a non-empty subset of the input
// universe whose documents the rule considers equivalent, the rule's score
// for them, and the (possibly narrowed) sub-query for tie-breaking.
type Bucket struct {
	Candidates *roaring.Bitmap
	Score      ScoreDetails
	Query      *Query
}

// RankingRule is a stateful ordered-bucket iterator bound to one query.
//
// Lifecycle: created once per query, receives exactly one StartIteration
// before any NextBucket at a given stack level, then any number of
// NextBucket calls, and is terminated by EndIteration. The driver may run
// this cycle multiple times at different stack levels.
//
// Exhaustion contract: when NextBucket returns a nil bucket, the universe it
// was passed must be empty. The driver asserts this; a violation is a
// programming error surfaced as an internal error.
type RankingRule interface {
	// ID is a diagnostic identifier, stable across versions.
	ID() string

	// StartIteration prepares the rule to enumerate ordered buckets over
	// universe given query. The rule must not retain universe beyond the
	// next EndIteration.
	StartIteration(ctx *Context, logger SearchLogger, universe *roaring.Bitmap, query *Query) error

	// NextBucket returns the next best bucket restricted to universe.
	// The driver may have shrunk universe between calls due to distinct.
	NextBucket(ctx *Context, logger SearchLogger, universe *roaring.Bitmap) (*Bucket, error)

	// EndIteration releases per-iteration state.
	EndIteration(ctx *Context, logger SearchLogger)
}

// ScoringStrategy selects whether full score vectors are computed (Default)
// or tie-breaking is short-circuited on trivial buckets (Skip).
type ScoringStrategy uint8

const (
	// ScoringDefault descends through every rule so each document gets a
	// full-depth score vector.
	ScoringDefault ScoringStrategy = iota

	// ScoringSkip stops descending once a bucket uniquely identifies a
	// document. Same docids, possibly shorter score vectors.
	ScoringSkip
)

// ParseScoringStrategy maps the API value to a strategy. Unknown values fall
// back to Default.
func ParseScoringStrategy(s string) ScoringStrategy {
	if s == "skip" {
		return ScoringSkip
	}
	return ScoringDefault
}
