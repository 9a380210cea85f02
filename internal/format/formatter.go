// Package format turns ranked document ids into API hits: attribute
// selection, term highlighting, cropping, and match positions.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/strand-search/strand/internal/store"
)

// Default formatting parameters.
const (
	DefaultCropLength = 10
	DefaultPreTag     = "<em>"
	DefaultPostTag    = "</em>"
	DefaultCropMarker = "…"
	wildcardAttribute = "*"
)

// Options configure one search's formatting, straight from the query input.
type Options struct {
	// AttributesToRetrieve selects the top-level hit fields. Nil means
	// ["*"]. An explicit empty list yields empty hits.
	AttributesToRetrieve []string

	// AttributesToHighlight wraps matched terms in the highlight tags
	// inside _formatted. Nil means absent.
	AttributesToHighlight []string

	// AttributesToCrop crops fields around the first match inside
	// _formatted. Entries may carry a per-field length: "overview:5".
	AttributesToCrop []string

	// CropLength is the global crop window, in words.
	CropLength int

	// ShowMatchesPosition adds _matchesPosition with byte offsets.
	ShowMatchesPosition bool

	HighlightPreTag  string
	HighlightPostTag string
	CropMarker       string
}

// Hit is one formatted document.
type Hit map[string]any

// Formatter renders hits for one index snapshot.
type Formatter struct {
	tok store.Tokenizer
}

// New creates a formatter using the index's analysis chain, so matching is
// consistent with indexing.
func New(tok store.Tokenizer) *Formatter {
	return &Formatter{tok: tok}
}

// FormatHits renders docids into hits.
//
// displayed is the index's displayed-attributes setting (nil or ["*"] means
// every field). matched holds the normalized words that count as query
// matches. The returned hits preserve docid order.
func (f *Formatter) FormatHits(
	txn store.Txn,
	docids []uint32,
	displayed []string,
	matched map[string]bool,
	opts Options,
) ([]Hit, error) {
	opts = withDefaults(opts)
	cropLengths := parseCropAttributes(opts.AttributesToCrop, opts.CropLength)

	hits := make([]Hit, 0, len(docids))
	for _, docid := range docids {
		doc, err := txn.Document(docid)
		if err != nil {
			return nil, err
		}

		displayedSet := expand(displayed, doc, nil)
		retrieveSet := expand(opts.AttributesToRetrieve, doc, displayedSet)
		highlightSet := map[string]bool{}
		if opts.AttributesToHighlight != nil {
			highlightSet = expand(opts.AttributesToHighlight, doc, displayedSet)
		}
		cropSet := map[string]bool{}
		for field := range cropLengths {
			if field == wildcardAttribute {
				for name := range displayedSet {
					cropSet[name] = true
				}
			} else if displayedSet[field] {
				cropSet[field] = true
			}
		}

		hit := Hit{}
		for field := range retrieveSet {
			hit[field] = doc[field]
		}

		// _formatted only materializes when the query asked for
		// highlighting or cropping.
		if opts.AttributesToHighlight != nil || opts.AttributesToCrop != nil {
			formatted := map[string]any{}
			formattedSet := union(retrieveSet, highlightSet, cropSet)
			for field := range formattedSet {
				text := stringify(doc[field])
				if cropSet[field] {
					length := cropLengths[field]
					if length == 0 {
						length = cropLengths[wildcardAttribute]
					}
					if length == 0 {
						length = opts.CropLength
					}
					text = f.crop(text, matched, length, opts.CropMarker)
				}
				if highlightSet[field] {
					text = f.highlight(text, matched, opts.HighlightPreTag, opts.HighlightPostTag)
				}
				formatted[field] = text
			}
			hit["_formatted"] = formatted
		}

		if opts.ShowMatchesPosition {
			positions := f.matchesPosition(doc, displayedSet, matched)
			if len(positions) > 0 {
				hit["_matchesPosition"] = positions
			}
		}

		hits = append(hits, hit)
	}
	return hits, nil
}

func withDefaults(opts Options) Options {
	if opts.CropLength <= 0 {
		opts.CropLength = DefaultCropLength
	}
	if opts.HighlightPreTag == "" {
		opts.HighlightPreTag = DefaultPreTag
	}
	if opts.HighlightPostTag == "" {
		opts.HighlightPostTag = DefaultPostTag
	}
	if opts.CropMarker == "" {
		opts.CropMarker = DefaultCropMarker
	}
	return opts
}

// expand resolves an attribute list against a document: "*" means every
// displayed field; explicit names intersect with the displayed set. A nil
// list defaults to "*"; an empty one selects nothing.
func expand(attrs []string, doc map[string]any, displayed map[string]bool) map[string]bool {
	out := map[string]bool{}
	if attrs == nil {
		attrs = []string{wildcardAttribute}
	}
	for _, attr := range attrs {
		if attr == wildcardAttribute {
			if displayed == nil {
				for field := range doc {
					out[field] = true
				}
			} else {
				for field := range displayed {
					out[field] = true
				}
			}
			continue
		}
		if _, ok := doc[attr]; !ok {
			continue
		}
		if displayed == nil || displayed[attr] {
			out[attr] = true
		}
	}
	return out
}

func union(sets ...map[string]bool) map[string]bool {
	out := map[string]bool{}
	for _, s := range sets {
		for k := range s {
			out[k] = true
		}
	}
	return out
}

// parseCropAttributes splits "field:N" entries into per-field crop lengths.
func parseCropAttributes(attrs []string, fallback int) map[string]int {
	out := map[string]int{}
	for _, attr := range attrs {
		field, lenStr, found := strings.Cut(attr, ":")
		length := fallback
		if found {
			if _, err := fmt.Sscanf(lenStr, "%d", &length); err != nil {
				length = fallback
			}
		}
		out[field] = length
	}
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

// highlight wraps every matched token in the tags, preserving the
// surrounding text byte for byte.
func (f *Formatter) highlight(text string, matched map[string]bool, pre, post string) string {
	tokens := f.tok.Tokens(text)
	if len(tokens) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, t := range tokens {
		if !matched[t.Term] {
			continue
		}
		b.WriteString(text[last:t.Start])
		b.WriteString(pre)
		b.WriteString(text[t.Start:t.End])
		b.WriteString(post)
		last = t.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// crop keeps a window of cropLength words around the first match. Without a
// match the head of the field is kept. Truncated ends get the crop marker.
func (f *Formatter) crop(text string, matched map[string]bool, cropLength int, marker string) string {
	tokens := f.tok.Tokens(text)
	if len(tokens) <= cropLength {
		return text
	}

	first := -1
	for i, t := range tokens {
		if matched[t.Term] {
			first = i
			break
		}
	}

	start := 0
	if first >= 0 {
		// Center the window on the first match.
		start = first - cropLength/2
		if start < 0 {
			start = 0
		}
	}
	end := start + cropLength
	if end > len(tokens) {
		end = len(tokens)
		start = end - cropLength
		if start < 0 {
			start = 0
		}
	}

	out := text[tokens[start].Start:tokens[end-1].End]
	if start > 0 {
		out = marker + out
	}
	if end < len(tokens) {
		out += marker
	}
	return out
}

// matchesPosition lists byte offsets of matched tokens per displayed field.
func (f *Formatter) matchesPosition(doc map[string]any, displayed map[string]bool, matched map[string]bool) map[string][]Position {
	out := map[string][]Position{}

	fields := make([]string, 0, len(displayed))
	for field := range displayed {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		text, ok := store.FieldText(doc[field])
		if !ok {
			continue
		}
		for _, t := range f.tok.Tokens(text) {
			if matched[t.Term] {
				out[field] = append(out[field], Position{Start: t.Start, Length: t.End - t.Start})
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Position is one match location, in bytes.
type Position struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}
