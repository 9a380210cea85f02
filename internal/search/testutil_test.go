package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/store"
)

// fakeTxn is a minimal store.Txn for driver-level tests: arbitrary document
// ids, an optional distinct field, no postings.
type fakeTxn struct {
	distinct string
	// values maps docid -> distinct-field value.
	values map[uint32]string
	docs   *roaring.Bitmap
}

var _ store.Txn = (*fakeTxn)(nil)

func (t *fakeTxn) DistinctField() (string, bool, error) {
	return t.distinct, t.distinct != "", nil
}

func (t *fakeTxn) FieldID(name string) (store.FieldID, bool, error) {
	if t.distinct != "" && name == t.distinct {
		return 0, true, nil
	}
	return 0, false, nil
}

func (t *fakeTxn) FieldName(store.FieldID) (string, bool) { return t.distinct, t.distinct != "" }
func (t *fakeTxn) SearchableFields() []store.FieldID      { return nil }

func (t *fakeTxn) Documents() *roaring.Bitmap {
	if t.docs != nil {
		return t.docs.Clone()
	}
	return roaring.New()
}

func (t *fakeTxn) WordDocids(string) (*roaring.Bitmap, error)       { return roaring.New(), nil }
func (t *fakeTxn) WordPrefixDocids(string) (*roaring.Bitmap, error) { return roaring.New(), nil }
func (t *fakeTxn) WordPairProximityDocids(string, string, int) (*roaring.Bitmap, error) {
	return roaring.New(), nil
}
func (t *fakeTxn) WordFieldDocids(string, store.FieldID) (*roaring.Bitmap, error) {
	return roaring.New(), nil
}

func (t *fakeTxn) FieldValue(docid uint32, _ store.FieldID) (store.Value, bool, error) {
	v, ok := t.values[docid]
	if !ok {
		return store.Value{}, false, nil
	}
	return store.Value{Kind: store.ValueString, Str: v}, true, nil
}

func (t *fakeTxn) DocidsWithFieldValue(_ store.FieldID, v store.Value) (*roaring.Bitmap, error) {
	out := roaring.New()
	for docid, val := range t.values {
		if val == v.Str {
			out.Add(docid)
		}
	}
	return out, nil
}

func (t *fakeTxn) FieldDocids(store.FieldID) (*roaring.Bitmap, error) { return roaring.New(), nil }
func (t *fakeTxn) OrderedFieldValues(store.FieldID, bool) ([]store.ValueGroup, error) {
	return nil, nil
}
func (t *fakeTxn) GeoPoint(uint32) (float64, float64, bool, error) { return 0, 0, false, nil }
func (t *fakeTxn) Dictionary() []string                            { return nil }
func (t *fakeTxn) Document(uint32) (map[string]any, error)         { return nil, nil }
func (t *fakeTxn) ExternalID(uint32) (string, bool)                { return "", false }
func (t *fakeTxn) Close() error                                    { return nil }

// stubRule serves scripted buckets clipped to the live universe, then the
// remaining universe as a final bucket, honoring the exhaustion contract.
type stubRule struct {
	name    string
	buckets [][]uint32

	next         int
	restEmitted  bool
	started      int
	nextCalls    int
	brokenFinish bool // when set, claim exhaustion while the universe is non-empty
}

var _ RankingRule = (*stubRule)(nil)

func (r *stubRule) ID() string { return r.name }

func (r *stubRule) StartIteration(_ *Context, _ SearchLogger, _ *roaring.Bitmap, _ *Query) error {
	r.started++
	r.next = 0
	r.restEmitted = false
	return nil
}

func (r *stubRule) NextBucket(_ *Context, _ SearchLogger, universe *roaring.Bitmap) (*Bucket, error) {
	r.nextCalls++
	for r.next < len(r.buckets) {
		ids := r.buckets[r.next]
		r.next++
		candidates := roaring.New()
		for _, id := range ids {
			if universe.Contains(id) {
				candidates.Add(id)
			}
		}
		if candidates.IsEmpty() {
			continue
		}
		return &Bucket{
			Candidates: candidates,
			Score:      RankScore{Rule: r.name, Rank: len(r.buckets) - r.next + 1, MaxRank: len(r.buckets) + 1},
			Query:      &Query{},
		}, nil
	}
	if r.brokenFinish {
		return nil, nil
	}
	if !r.restEmitted {
		r.restEmitted = true
		if !universe.IsEmpty() {
			return &Bucket{
				Candidates: universe.Clone(),
				Score:      RankScore{Rule: r.name, Rank: 0, MaxRank: len(r.buckets) + 1},
				Query:      &Query{},
			}, nil
		}
	}
	return nil, nil
}

func (r *stubRule) EndIteration(*Context, SearchLogger) {}

func bitmapOf(ids ...uint32) *roaring.Bitmap {
	return roaring.BitmapOf(ids...)
}

// identityRule emits the whole universe as one bucket. Used as a secondary
// rule whose StartIteration calls are counted.
func identityRule(name string) *stubRule {
	return &stubRule{name: name}
}
