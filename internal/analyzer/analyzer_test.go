package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_LowercasesAndPositions(t *testing.T) {
	an := New()
	tokens := an.Tokens("The Quick BROWN fox")

	require.Len(t, tokens, 4)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
		assert.Equal(t, i, tok.Position)
	}
	assert.Equal(t, []string{"the", "quick", "brown", "fox"}, terms)
}

func TestTokens_ByteOffsetsPointIntoSource(t *testing.T) {
	an := New()
	src := "héllo wörld"
	tokens := an.Tokens(src)

	require.Len(t, tokens, 2)
	assert.Equal(t, "wörld", src[tokens[1].Start:tokens[1].End])
}

func TestTokens_Empty(t *testing.T) {
	an := New()
	assert.Nil(t, an.Tokens(""))
}

func TestParseQuery_LastWordIsPrefix(t *testing.T) {
	an := New()
	dict := []string{"coat", "winter", "winters"}

	terms := an.ParseQuery("winter", dict)
	require.Len(t, terms, 1)
	assert.True(t, terms[0].Prefix)
	assert.Contains(t, terms[0].ZeroTypo, "winter")
	assert.Contains(t, terms[0].ZeroTypo, "winters")

	// A trailing space means the word is complete.
	terms = an.ParseQuery("winter ", dict)
	require.Len(t, terms, 1)
	assert.False(t, terms[0].Prefix)
	assert.Equal(t, []string{"winter"}, terms[0].ZeroTypo)
}

func TestParseQuery_TypoBudgetGates(t *testing.T) {
	an := New()

	tests := []struct {
		word   string
		budget int
	}{
		{"cat", 0},       // 3 runes
		{"mars", 0},      // 4 runes
		{"terra", 1},     // 5 runes
		{"asteroid", 1},  // 8 runes
		{"spacecraft", 2}, // 10 runes
	}
	for _, tt := range tests {
		terms := an.ParseQuery(tt.word+" x", nil)
		require.NotEmpty(t, terms, tt.word)
		assert.Equal(t, tt.budget, terms[0].MaxTypos, tt.word)
	}
}

func TestParseQuery_VariantsPartitionByDistance(t *testing.T) {
	an := New()
	dict := []string{"bobbie", "bobby", "boby", "buddy"}

	terms := an.ParseQuery("bobby ", dict)
	require.Len(t, terms, 1)

	assert.Equal(t, []string{"bobby"}, terms[0].ZeroTypo)
	assert.Equal(t, []string{"boby"}, terms[0].OneTypo)
	assert.Empty(t, terms[0].TwoTypo, "budget is 1 for a 5-rune word")
}

func TestParseQuery_CustomGatesWidenBudget(t *testing.T) {
	an := New(WithTypoGates(4, 5))
	dict := []string{"bobbie", "bobby", "boby"}

	terms := an.ParseQuery("bobby ", dict)
	require.Len(t, terms, 1)
	assert.Equal(t, []string{"boby"}, terms[0].OneTypo)
	assert.Equal(t, []string{"bobbie"}, terms[0].TwoTypo)
}

func TestParseQuery_PhrasesPinExactWords(t *testing.T) {
	an := New()
	dict := []string{"african", "leopard", "leopards"}

	terms := an.ParseQuery(`big "african leopard"`, dict)
	require.Len(t, terms, 3)

	assert.False(t, terms[0].InPhrase)
	assert.True(t, terms[1].InPhrase)
	assert.True(t, terms[2].InPhrase)
	assert.Equal(t, 0, terms[2].MaxTypos)
	assert.False(t, terms[2].Prefix, "phrase words never prefix-match")
	assert.Equal(t, []string{"leopard"}, terms[2].ZeroTypo)
}

func TestParseQuery_UnbalancedQuote(t *testing.T) {
	an := New()
	terms := an.ParseQuery(`winter "coat`, nil)
	require.Len(t, terms, 2)
	assert.False(t, terms[1].InPhrase)
}

func TestParseQuery_Positions(t *testing.T) {
	an := New()
	terms := an.ParseQuery("one two three", nil)
	require.Len(t, terms, 3)
	for i, term := range terms {
		assert.Equal(t, i, term.Position)
	}
}

func TestEditDistanceAtMost(t *testing.T) {
	tests := []struct {
		a, b string
		max  int
		d    int
		ok   bool
	}{
		{"bobby", "bobby", 2, 0, true},
		{"bobby", "boby", 2, 1, true},
		{"bobby", "bobbie", 2, 2, true},
		{"bobby", "buddy", 2, 0, false},
		{"kitten", "sitting", 3, 3, true},
		{"a", "abcd", 2, 0, false},
		{"", "ab", 2, 2, true},
		{"héllo", "hello", 1, 1, true},
	}
	for _, tt := range tests {
		d, ok := editDistanceAtMost(tt.a, tt.b, tt.max)
		assert.Equal(t, tt.ok, ok, "%s vs %s", tt.a, tt.b)
		if ok {
			assert.Equal(t, tt.d, d, "%s vs %s", tt.a, tt.b)
		}
	}
}
