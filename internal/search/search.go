// Package search implements ranked retrieval: the bucket-sort driver, the
// ranking-rule graph machinery, the concrete ranking rules, distinct
// filtering and scoring.
package search

import (
	"context"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/analyzer"
	strerrors "github.com/strand-search/strand/internal/errors"
	"github.com/strand-search/strand/internal/store"
)

// DefaultRankingRules is the pipeline applied when an index configures none.
var DefaultRankingRules = []string{"words", "typo", "proximity", "attribute", "exactness"}

// Request is the query input to the core.
type Request struct {
	Query           string
	Offset          int
	Limit           int
	Sort            []string
	ScoringStrategy ScoringStrategy
}

// Result pairs the ranked output with the terms the query analyzed into,
// which the formatter needs for highlighting.
type Result struct {
	*BucketSortOutput
	Terms []*analyzer.LocatedQueryTerm
}

// Search runs one query against a store snapshot.
//
// The call is CPU-bound and single-threaded; callers integrate cancellation
// and deadlines through ctx, which the driver polls every iteration.
func Search(
	ctx context.Context,
	txn store.Txn,
	an *analyzer.Analyzer,
	cache *ConditionCache,
	rankingRules []string,
	req Request,
	logger SearchLogger,
) (*Result, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		return nil, strerrors.InvalidQuery("offset must be >= 0, got %d", req.Offset)
	}

	sctx := NewContext(ctx, txn, cache)

	terms := an.ParseQuery(req.Query, txn.Dictionary())
	query := &Query{Terms: terms}

	universe, err := resolveUniverse(sctx, query)
	if err != nil {
		return nil, err
	}

	rules, err := buildRules(txn, rankingRules, req.Sort, query)
	if err != nil {
		return nil, err
	}

	out, err := BucketSort(sctx, rules, query, universe, req.Offset, req.Limit, req.ScoringStrategy, logger)
	if err != nil {
		return nil, err
	}
	return &Result{BucketSortOutput: out, Terms: terms}, nil
}

// resolveUniverse computes the initial candidate set. A placeholder query
// spans every document; a term query spans the documents the first term can
// match — exactly the union of every words-rule bucket, so the words rule
// sorts it exhaustively.
func resolveUniverse(ctx *Context, query *Query) (*roaring.Bitmap, error) {
	if query.IsPlaceholder() {
		return ctx.Txn.Documents(), nil
	}
	return unionWordDocids(ctx, query.Terms[0].AllWords())
}

// buildRules assembles the rule pipeline from the index's configured ranking
// rules and the query's sort directives.
func buildRules(txn store.Txn, configured []string, sortEntries []string, query *Query) ([]RankingRule, error) {
	if len(configured) == 0 {
		configured = DefaultRankingRules
	}

	var rules []RankingRule
	sortPlaced := false
	for _, name := range configured {
		switch name {
		case "words", "typo", "proximity", "attribute", "exactness":
			if query.IsPlaceholder() {
				continue // term rules have nothing to grade
			}
			switch name {
			case "words":
				rules = append(rules, NewWordsRule())
			case "typo":
				rules = append(rules, NewTypoRule())
			case "proximity":
				rules = append(rules, NewProximityRule())
			case "attribute":
				rules = append(rules, NewAttributeRule())
			case "exactness":
				rules = append(rules, NewExactnessRule())
			}
		case "sort":
			sortRules, err := buildSortRules(txn, sortEntries)
			if err != nil {
				return nil, err
			}
			rules = append(rules, sortRules...)
			sortPlaced = true
		default:
			// Static sort baked into the settings: "field:asc" / "field:desc".
			rule, err := parseStaticSort(txn, name)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rule)
		}
	}

	// Query-level sort still applies when the settings never place "sort":
	// it ranks first, mirroring an explicit user intent.
	if !sortPlaced && len(sortEntries) > 0 {
		sortRules, err := buildSortRules(txn, sortEntries)
		if err != nil {
			return nil, err
		}
		rules = append(sortRules, rules...)
	}
	return rules, nil
}

func buildSortRules(txn store.Txn, entries []string) ([]RankingRule, error) {
	var rules []RankingRule
	for _, entry := range entries {
		if lat, lng, ok := parseGeoPointSort(entry); ok {
			rules = append(rules, NewGeoRule(lat, lng))
			continue
		}
		rule, err := parseStaticSort(txn, entry)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseStaticSort(txn store.Txn, entry string) (RankingRule, error) {
	field, dir, found := strings.Cut(entry, ":")
	if !found || (dir != "asc" && dir != "desc") || field == "" {
		return nil, strerrors.InvalidQuery(
			"invalid sort %q, expected \"field:asc\" or \"field:desc\"", entry)
	}
	fid, ok, err := txn.FieldID(field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, strerrors.InvalidQuery("unknown field %q in sort", field)
	}
	return NewSortRule(field, fid, dir == "asc"), nil
}

// parseGeoPointSort parses "_geoPoint(lat, lng)" with an optional
// ":asc" suffix.
func parseGeoPointSort(entry string) (lat, lng float64, ok bool) {
	entry = strings.TrimSuffix(entry, ":asc")
	if !strings.HasPrefix(entry, "_geoPoint(") || !strings.HasSuffix(entry, ")") {
		return 0, 0, false
	}
	inner := entry[len("_geoPoint(") : len(entry)-1]
	parts := strings.Split(inner, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
