// Package analyzer turns raw text into tokens and raw query strings into
// located query terms with their typo-tolerant variants.
//
// Tokenization runs bleve's analysis chain (unicode segmenter + lowercase
// filter) so documents and queries normalize identically.
package analyzer

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"

	"github.com/strand-search/strand/internal/store"
)

// Analyzer is the shared document/query analysis chain. Safe for concurrent
// use: the underlying bleve tokenizer and filter are stateless.
type Analyzer struct {
	tokenizer analysis.Tokenizer
	lowercase analysis.TokenFilter

	oneTypoMinLen int
	twoTypoMinLen int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTypoGates overrides the rune-length thresholds at which words accept
// one and two typos.
func WithTypoGates(oneTypoMin, twoTypoMin int) Option {
	return func(a *Analyzer) {
		a.oneTypoMinLen = oneTypoMin
		a.twoTypoMinLen = twoTypoMin
	}
}

// New creates the default analysis chain.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		tokenizer:     unicode.NewUnicodeTokenizer(),
		lowercase:     lowercase.NewLowerCaseFilter(),
		oneTypoMinLen: oneTypoMinLen,
		twoTypoMinLen: twoTypoMinLen,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ store.Tokenizer = (*Analyzer)(nil)

// Tokens analyzes field text. Positions are 0-based and dense.
func (a *Analyzer) Tokens(text string) []store.Token {
	if text == "" {
		return nil
	}
	stream := a.lowercase.Filter(a.tokenizer.Tokenize([]byte(text)))
	out := make([]store.Token, 0, len(stream))
	for i, t := range stream {
		out = append(out, store.Token{
			Term:     string(t.Term),
			Position: i,
			Start:    t.Start,
			End:      t.End,
		})
	}
	return out
}
