package analyzer

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Typo budget length gates, in runes.
const (
	oneTypoMinLen = 5
	twoTypoMinLen = 9
)

// LocatedQueryTerm is one query word with its span and the variant sets the
// ranking rules consume. The variant lists partition by typo count; a word
// never appears in two lists of the same term.
type LocatedQueryTerm struct {
	// Word is the normalized query word.
	Word string

	// Position is the term's index in the query token stream.
	Position int

	// Prefix marks the trailing word of an unquoted query: it also
	// matches dictionary words it prefixes.
	Prefix bool

	// InPhrase pins the word to its exact form (no typos, no prefix).
	InPhrase bool

	// MaxTypos is the typo budget for this word (0..2).
	MaxTypos int

	// ZeroTypo holds the exact word plus prefix expansions.
	ZeroTypo []string

	// OneTypo and TwoTypo hold dictionary words at edit distance 1 and 2.
	OneTypo []string
	TwoTypo []string
}

// AllWords returns every variant, all typo levels combined.
func (t *LocatedQueryTerm) AllWords() []string {
	out := make([]string, 0, len(t.ZeroTypo)+len(t.OneTypo)+len(t.TwoTypo))
	out = append(out, t.ZeroTypo...)
	out = append(out, t.OneTypo...)
	out = append(out, t.TwoTypo...)
	return out
}

// WordsAtTypo returns the variants with exactly n typos.
func (t *LocatedQueryTerm) WordsAtTypo(n int) []string {
	switch n {
	case 0:
		return t.ZeroTypo
	case 1:
		return t.OneTypo
	case 2:
		return t.TwoTypo
	default:
		return nil
	}
}

// typoBudget returns the typo budget for a word of the given rune length.
func (a *Analyzer) typoBudget(runes int) int {
	switch {
	case runes >= a.twoTypoMinLen:
		return 2
	case runes >= a.oneTypoMinLen:
		return 1
	default:
		return 0
	}
}

// ParseQuery analyzes the raw query string into located query terms,
// resolving typo and prefix variants against the index dictionary.
//
// Double-quoted segments form phrases: their words match exactly. The last
// word of an unquoted query matches as a prefix.
func (a *Analyzer) ParseQuery(q string, dictionary []string) []*LocatedQueryTerm {
	raw := q
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}

	type span struct {
		text     string
		inPhrase bool
	}
	var spans []span
	rest := q
	for {
		open := strings.IndexByte(rest, '"')
		if open < 0 {
			spans = append(spans, span{text: rest})
			break
		}
		if open > 0 {
			spans = append(spans, span{text: rest[:open]})
		}
		close := strings.IndexByte(rest[open+1:], '"')
		if close < 0 {
			// Unbalanced quote: treat the remainder as plain words.
			spans = append(spans, span{text: rest[open+1:]})
			break
		}
		spans = append(spans, span{text: rest[open+1 : open+1+close], inPhrase: true})
		rest = rest[open+close+2:]
		if rest == "" {
			break
		}
	}

	endsMidWord := !strings.HasSuffix(raw, " ") && !strings.HasSuffix(raw, `"`)

	var terms []*LocatedQueryTerm
	pos := 0
	for _, sp := range spans {
		for _, tok := range a.Tokens(sp.text) {
			terms = append(terms, &LocatedQueryTerm{
				Word:     tok.Term,
				Position: pos,
				InPhrase: sp.inPhrase,
			})
			pos++
		}
	}
	if len(terms) == 0 {
		return nil
	}

	last := terms[len(terms)-1]
	if !last.InPhrase && endsMidWord {
		last.Prefix = true
	}

	for _, t := range terms {
		a.resolveVariants(t, dictionary)
	}
	return terms
}

// resolveVariants fills the typo and prefix variant sets from the dictionary.
func (a *Analyzer) resolveVariants(t *LocatedQueryTerm, dictionary []string) {
	t.ZeroTypo = []string{t.Word}
	if t.InPhrase {
		t.MaxTypos = 0
		return
	}

	t.MaxTypos = a.typoBudget(utf8.RuneCountInString(t.Word))

	if t.Prefix {
		i := sort.SearchStrings(dictionary, t.Word)
		for ; i < len(dictionary) && strings.HasPrefix(dictionary[i], t.Word); i++ {
			if dictionary[i] != t.Word {
				t.ZeroTypo = append(t.ZeroTypo, dictionary[i])
			}
		}
	}

	if t.MaxTypos == 0 {
		return
	}
	zero := map[string]bool{}
	for _, w := range t.ZeroTypo {
		zero[w] = true
	}
	for _, word := range dictionary {
		if zero[word] {
			continue
		}
		d, ok := editDistanceAtMost(t.Word, word, t.MaxTypos)
		if !ok {
			continue
		}
		switch d {
		case 1:
			t.OneTypo = append(t.OneTypo, word)
		case 2:
			t.TwoTypo = append(t.TwoTypo, word)
		}
	}
}

// editDistanceAtMost computes the Levenshtein distance between a and b if it
// is <= max, using a banded DP over runes.
func editDistanceAtMost(a, b string, max int) (int, bool) {
	ra := []rune(a)
	rb := []rune(b)
	la, lb := len(ra), len(rb)

	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff > max {
		return 0, false
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			m := prev[j-1] + cost
			if v := prev[j] + 1; v < m {
				m = v
			}
			if v := cur[j-1] + 1; v < m {
				m = v
			}
			cur[j] = m
			if m < rowMin {
				rowMin = m
			}
		}
		if rowMin > max {
			return 0, false
		}
		prev, cur = cur, prev
	}

	if prev[lb] > max {
		return 0, false
	}
	return prev[lb], true
}
