package store

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	strerrors "github.com/strand-search/strand/internal/errors"
)

// RawDocument is one document as handed to the index builder.
type RawDocument struct {
	ExternalID string
	Fields     map[string]any
}

// BuildOptions control how postings are derived from documents.
type BuildOptions struct {
	// SearchableFields lists field names in attribute-ranking order.
	// Empty means every discovered field, in discovery order.
	SearchableFields []string

	// DistinctField is the field whose value must be unique across
	// returned documents. Empty disables distinct.
	DistinctField string
}

// MemoryIndex is the in-RAM inverted index. Postings are immutable once
// published: a rebuild assembles a fresh snapshot and swaps the pointer, so
// open transactions keep reading the snapshot they pinned.
type MemoryIndex struct {
	mu   sync.RWMutex
	snap *snapshot
}

type snapshot struct {
	documents *roaring.Bitmap
	docs      map[DocID]map[string]any
	external  map[DocID]string

	fieldIDs   map[string]FieldID
	fieldNames []string
	searchable []FieldID
	distinct   string

	words         map[string]*roaring.Bitmap
	pairProximity map[pairKey]*roaring.Bitmap
	wordField     map[wordFieldKey]*roaring.Bitmap

	fieldValue       map[FieldID]map[DocID]Value
	fieldValueDocids map[FieldID]map[string]*roaring.Bitmap
	fieldDocids      map[FieldID]*roaring.Bitmap

	geo map[DocID][2]float64

	dictionary []string
}

func emptySnapshot() *snapshot {
	return &snapshot{
		documents:        roaring.New(),
		docs:             map[DocID]map[string]any{},
		external:         map[DocID]string{},
		fieldIDs:         map[string]FieldID{},
		words:            map[string]*roaring.Bitmap{},
		pairProximity:    map[pairKey]*roaring.Bitmap{},
		wordField:        map[wordFieldKey]*roaring.Bitmap{},
		fieldValue:       map[FieldID]map[DocID]Value{},
		fieldValueDocids: map[FieldID]map[string]*roaring.Bitmap{},
		fieldDocids:      map[FieldID]*roaring.Bitmap{},
		geo:              map[DocID][2]float64{},
	}
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{snap: emptySnapshot()}
}

var _ Reader = (*MemoryIndex)(nil)

// BeginTxn pins the current snapshot.
func (m *MemoryIndex) BeginTxn() (Txn, error) {
	m.mu.RLock()
	snap := m.snap
	m.mu.RUnlock()
	return &memTxn{snap: snap}, nil
}

// Rebuild analyzes docs and publishes a fresh snapshot. Document ids are
// assigned densely in input order, starting at 0.
func (m *MemoryIndex) Rebuild(docs []RawDocument, opts BuildOptions, tok Tokenizer) error {
	snap := emptySnapshot()
	snap.distinct = opts.DistinctField

	// Searchable fields claim the low ids so their order doubles as the
	// attribute ranking.
	for _, name := range opts.SearchableFields {
		snap.fieldID(name)
	}

	for i, doc := range docs {
		id := DocID(i)
		snap.documents.Add(id)
		snap.docs[id] = doc.Fields
		snap.external[id] = doc.ExternalID
		snap.addDocument(id, doc.Fields, opts, tok)
	}

	if len(opts.SearchableFields) > 0 {
		for _, name := range opts.SearchableFields {
			fid := snap.fieldIDs[name]
			snap.searchable = append(snap.searchable, fid)
		}
	} else {
		for fid := range snap.fieldNames {
			snap.searchable = append(snap.searchable, FieldID(fid))
		}
	}

	snap.dictionary = make([]string, 0, len(snap.words))
	for w := range snap.words {
		snap.dictionary = append(snap.dictionary, w)
	}
	sort.Strings(snap.dictionary)

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
	return nil
}

// DocumentCount returns the number of live documents.
func (m *MemoryIndex) DocumentCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.documents.GetCardinality()
}

func (s *snapshot) fieldID(name string) FieldID {
	if fid, ok := s.fieldIDs[name]; ok {
		return fid
	}
	fid := FieldID(len(s.fieldNames))
	s.fieldIDs[name] = fid
	s.fieldNames = append(s.fieldNames, name)
	return fid
}

func (s *snapshot) addDocument(id DocID, fields map[string]any, opts BuildOptions, tok Tokenizer) {
	searchAll := len(opts.SearchableFields) == 0
	searchSet := map[string]bool{}
	for _, f := range opts.SearchableFields {
		searchSet[f] = true
	}

	// Deterministic field order: searchable order first, then the rest
	// sorted by name.
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	ordered := make([]string, 0, len(names))
	for _, f := range opts.SearchableFields {
		if _, ok := fields[f]; ok {
			ordered = append(ordered, f)
		}
	}
	for _, name := range names {
		if !searchSet[name] {
			ordered = append(ordered, name)
		}
	}

	for _, name := range ordered {
		raw := fields[name]
		fid := s.fieldID(name)

		if name == "_geo" {
			if pt, ok := geoPointOf(raw); ok {
				s.geo[id] = pt
			}
			continue
		}

		if v, ok := ToValue(raw); ok {
			if s.fieldValue[fid] == nil {
				s.fieldValue[fid] = map[DocID]Value{}
				s.fieldValueDocids[fid] = map[string]*roaring.Bitmap{}
			}
			s.fieldValue[fid][id] = v
			bm := s.fieldValueDocids[fid][v.Key()]
			if bm == nil {
				bm = roaring.New()
				s.fieldValueDocids[fid][v.Key()] = bm
			}
			bm.Add(id)
		}
		if s.fieldDocids[fid] == nil {
			s.fieldDocids[fid] = roaring.New()
		}
		s.fieldDocids[fid].Add(id)

		if !searchAll && !searchSet[name] {
			continue
		}
		text, ok := FieldText(raw)
		if !ok {
			continue
		}
		s.addPostings(id, fid, tok.Tokens(text))
	}
}

func (s *snapshot) addPostings(id DocID, fid FieldID, tokens []Token) {
	// Minimal proximity per (left, right) pair within this field.
	minProx := map[[2]string]int{}

	for i, t := range tokens {
		bm := s.words[t.Term]
		if bm == nil {
			bm = roaring.New()
			s.words[t.Term] = bm
		}
		bm.Add(id)

		wf := s.wordField[wordFieldKey{word: t.Term, fid: fid}]
		if wf == nil {
			wf = roaring.New()
			s.wordField[wordFieldKey{word: t.Term, fid: fid}] = wf
		}
		wf.Add(id)

		for j := i + 1; j < len(tokens); j++ {
			u := tokens[j]
			d := u.Position - t.Position
			if d > MaxProximity {
				break
			}
			if d < 1 {
				d = 1
			}
			fwd := [2]string{t.Term, u.Term}
			if p, ok := minProx[fwd]; !ok || d < p {
				minProx[fwd] = d
			}
			// The reversed pair costs one extra step, mirroring how a
			// query in the other word order still matches nearby text.
			rd := d + 1
			if rd > MaxProximity {
				rd = MaxProximity
			}
			rev := [2]string{u.Term, t.Term}
			if p, ok := minProx[rev]; !ok || rd < p {
				minProx[rev] = rd
			}
		}
	}

	for pair, d := range minProx {
		k := pairKey{left: pair[0], right: pair[1], proximity: uint8(d)}
		bm := s.pairProximity[k]
		if bm == nil {
			bm = roaring.New()
			s.pairProximity[k] = bm
		}
		bm.Add(id)
	}
}

func geoPointOf(raw any) ([2]float64, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return [2]float64{}, false
	}
	lat, okLat := obj["lat"].(float64)
	lng, okLng := obj["lng"].(float64)
	if !okLat || !okLng {
		return [2]float64{}, false
	}
	return [2]float64{lat, lng}, true
}

// memTxn reads one pinned snapshot. Posting lookups return copies: callers
// run bitmap arithmetic in place.
type memTxn struct {
	snap *snapshot
}

var _ Txn = (*memTxn)(nil)

func (t *memTxn) DistinctField() (string, bool, error) {
	return t.snap.distinct, t.snap.distinct != "", nil
}

func (t *memTxn) FieldID(name string) (FieldID, bool, error) {
	fid, ok := t.snap.fieldIDs[name]
	return fid, ok, nil
}

func (t *memTxn) FieldName(fid FieldID) (string, bool) {
	if int(fid) >= len(t.snap.fieldNames) {
		return "", false
	}
	return t.snap.fieldNames[fid], true
}

func (t *memTxn) SearchableFields() []FieldID {
	return t.snap.searchable
}

func (t *memTxn) Documents() *roaring.Bitmap {
	return t.snap.documents.Clone()
}

func (t *memTxn) WordDocids(word string) (*roaring.Bitmap, error) {
	if bm, ok := t.snap.words[word]; ok {
		return bm.Clone(), nil
	}
	return roaring.New(), nil
}

func (t *memTxn) WordPrefixDocids(prefix string) (*roaring.Bitmap, error) {
	out := roaring.New()
	dict := t.snap.dictionary
	i := sort.SearchStrings(dict, prefix)
	for ; i < len(dict) && len(dict[i]) >= len(prefix) && dict[i][:len(prefix)] == prefix; i++ {
		out.Or(t.snap.words[dict[i]])
	}
	return out, nil
}

func (t *memTxn) WordPairProximityDocids(left, right string, proximity int) (*roaring.Bitmap, error) {
	k := pairKey{left: left, right: right, proximity: uint8(proximity)}
	if bm, ok := t.snap.pairProximity[k]; ok {
		return bm.Clone(), nil
	}
	return roaring.New(), nil
}

func (t *memTxn) WordFieldDocids(word string, fid FieldID) (*roaring.Bitmap, error) {
	if bm, ok := t.snap.wordField[wordFieldKey{word: word, fid: fid}]; ok {
		return bm.Clone(), nil
	}
	return roaring.New(), nil
}

func (t *memTxn) FieldValue(docid DocID, fid FieldID) (Value, bool, error) {
	vals, ok := t.snap.fieldValue[fid]
	if !ok {
		return Value{}, false, nil
	}
	v, ok := vals[docid]
	return v, ok, nil
}

func (t *memTxn) DocidsWithFieldValue(fid FieldID, v Value) (*roaring.Bitmap, error) {
	groups, ok := t.snap.fieldValueDocids[fid]
	if !ok {
		return roaring.New(), nil
	}
	if bm, ok := groups[v.Key()]; ok {
		return bm.Clone(), nil
	}
	return roaring.New(), nil
}

func (t *memTxn) FieldDocids(fid FieldID) (*roaring.Bitmap, error) {
	if bm, ok := t.snap.fieldDocids[fid]; ok {
		return bm.Clone(), nil
	}
	return roaring.New(), nil
}

func (t *memTxn) OrderedFieldValues(fid FieldID, ascending bool) ([]ValueGroup, error) {
	groups, ok := t.snap.fieldValueDocids[fid]
	if !ok {
		return nil, nil
	}
	vals := t.snap.fieldValue[fid]

	// Recover one representative Value per group key.
	byKey := map[string]Value{}
	for _, v := range vals {
		if _, ok := byKey[v.Key()]; !ok {
			byKey[v.Key()] = v
		}
	}

	out := make([]ValueGroup, 0, len(groups))
	for key, bm := range groups {
		out = append(out, ValueGroup{Value: byKey[key], Docids: bm.Clone()})
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].Value.Less(out[j].Value)
		}
		return out[j].Value.Less(out[i].Value)
	})
	return out, nil
}

func (t *memTxn) GeoPoint(docid DocID) (float64, float64, bool, error) {
	pt, ok := t.snap.geo[docid]
	return pt[0], pt[1], ok, nil
}

func (t *memTxn) Dictionary() []string {
	return t.snap.dictionary
}

func (t *memTxn) Document(docid DocID) (map[string]any, error) {
	doc, ok := t.snap.docs[docid]
	if !ok {
		return nil, strerrors.Internal("document %d not in snapshot", docid)
	}
	return doc, nil
}

func (t *memTxn) ExternalID(docid DocID) (string, bool) {
	id, ok := t.snap.external[docid]
	return id, ok
}

func (t *memTxn) Close() error { return nil }
