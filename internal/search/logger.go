package search

import (
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
)

// SearchLogger observes the bucket-sort driver. Implementations must be
// cheap: the driver calls them on every bucket.
type SearchLogger interface {
	InitialQuery(q *Query)
	RankingRules(rules []RankingRule)
	InitialUniverse(universe *roaring.Bitmap)
	StartIterationRankingRule(level int, rule RankingRule, q *Query, universe *roaring.Bitmap)
	NextBucketRankingRule(level int, rule RankingRule, universe, candidates *roaring.Bitmap)
	SkipBucketRankingRule(level int, rule RankingRule, candidates *roaring.Bitmap)
	EndIterationRankingRule(level int, rule RankingRule, universe *roaring.Bitmap)
	AddToResults(docids []uint32)
}

// NopLogger discards everything.
type NopLogger struct{}

var _ SearchLogger = NopLogger{}

func (NopLogger) InitialQuery(*Query)                                                 {}
func (NopLogger) RankingRules([]RankingRule)                                          {}
func (NopLogger) InitialUniverse(*roaring.Bitmap)                                     {}
func (NopLogger) StartIterationRankingRule(int, RankingRule, *Query, *roaring.Bitmap) {}
func (NopLogger) NextBucketRankingRule(int, RankingRule, *roaring.Bitmap, *roaring.Bitmap) {
}
func (NopLogger) SkipBucketRankingRule(int, RankingRule, *roaring.Bitmap)    {}
func (NopLogger) EndIterationRankingRule(int, RankingRule, *roaring.Bitmap) {}
func (NopLogger) AddToResults([]uint32)                                      {}

// SlogLogger traces the driver through slog at debug level, tagging every
// line with a per-query id.
type SlogLogger struct {
	log     *slog.Logger
	queryID string
}

// NewSlogLogger creates a logger bound to a fresh query id.
func NewSlogLogger(log *slog.Logger) *SlogLogger {
	return &SlogLogger{log: log, queryID: uuid.NewString()}
}

// QueryID returns the generated per-query id.
func (l *SlogLogger) QueryID() string { return l.queryID }

var _ SearchLogger = (*SlogLogger)(nil)

func (l *SlogLogger) InitialQuery(q *Query) {
	l.log.Debug("search: initial query",
		slog.String("query_id", l.queryID),
		slog.Int("terms", len(q.Terms)))
}

func (l *SlogLogger) RankingRules(rules []RankingRule) {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID()
	}
	l.log.Debug("search: ranking rules",
		slog.String("query_id", l.queryID),
		slog.Any("rules", ids))
}

func (l *SlogLogger) InitialUniverse(universe *roaring.Bitmap) {
	l.log.Debug("search: initial universe",
		slog.String("query_id", l.queryID),
		slog.Uint64("size", universe.GetCardinality()))
}

func (l *SlogLogger) StartIterationRankingRule(level int, rule RankingRule, q *Query, universe *roaring.Bitmap) {
	l.log.Debug("search: start iteration",
		slog.String("query_id", l.queryID),
		slog.Int("level", level),
		slog.String("rule", rule.ID()),
		slog.Uint64("universe", universe.GetCardinality()))
}

func (l *SlogLogger) NextBucketRankingRule(level int, rule RankingRule, universe, candidates *roaring.Bitmap) {
	l.log.Debug("search: next bucket",
		slog.String("query_id", l.queryID),
		slog.Int("level", level),
		slog.String("rule", rule.ID()),
		slog.Uint64("universe", universe.GetCardinality()),
		slog.Uint64("candidates", candidates.GetCardinality()))
}

func (l *SlogLogger) SkipBucketRankingRule(level int, rule RankingRule, candidates *roaring.Bitmap) {
	l.log.Debug("search: skip bucket",
		slog.String("query_id", l.queryID),
		slog.Int("level", level),
		slog.String("rule", rule.ID()),
		slog.Uint64("candidates", candidates.GetCardinality()))
}

func (l *SlogLogger) EndIterationRankingRule(level int, rule RankingRule, universe *roaring.Bitmap) {
	l.log.Debug("search: end iteration",
		slog.String("query_id", l.queryID),
		slog.Int("level", level),
		slog.String("rule", rule.ID()))
}

func (l *SlogLogger) AddToResults(docids []uint32) {
	l.log.Debug("search: add to results",
		slog.String("query_id", l.queryID),
		slog.Int("count", len(docids)))
}
