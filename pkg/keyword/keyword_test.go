package keyword_test

import (
	"testing"

	"github.com/fyrsmithlabs/vecstore/pkg/keyword"
	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "splits on punctuation and whitespace",
			text: "Hello, World! foo-bar",
			want: []string{"hello", "world", "foo", "bar"},
		},
		{
			name: "lowercases",
			text: "TypeScript IS Great",
			want: []string{"typescript", "is", "great"},
		},
		{
			name: "keeps digits and underscores",
			text: "doc_1 v2",
			want: []string{"doc_1", "v2"},
		},
		{
			name: "empty input",
			text: "",
			want: []string{},
		},
		{
			name: "only punctuation",
			text: "... !!! ---",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keyword.Tokenize(tt.text)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestScoreExact(t *testing.T) {
	assert.InDelta(t, 1.0, keyword.Score("great", "TypeScript is great", keyword.ModeExact), 1e-6)
	assert.InDelta(t, 0.5, keyword.Score("great language", "TypeScript is great", keyword.ModeExact), 1e-6)
	assert.InDelta(t, 0.0, keyword.Score("rust", "TypeScript is great", keyword.ModeExact), 1e-6)

	// Empty query yields 0.
	assert.InDelta(t, 0.0, keyword.Score("", "anything", keyword.ModeExact), 1e-6)
	assert.InDelta(t, 0.0, keyword.Score("!!!", "anything", keyword.ModeExact), 1e-6)
}

func TestScoreExactMatchesBothDocumentsEqually(t *testing.T) {
	doc1 := "TypeScript is great"
	doc2 := "Python is great"
	s1 := keyword.Score("great", doc1, keyword.ModeExact)
	s2 := keyword.Score("great", doc2, keyword.ModeExact)
	assert.Equal(t, s1, s2)
	assert.InDelta(t, 1.0, s1, 1e-6)
}

func TestScorePrefix(t *testing.T) {
	// "type" is a prefix of "typescript".
	assert.InDelta(t, 1.0, keyword.Score("type", "TypeScript is great", keyword.ModePrefix), 1e-6)
	// "script" is contained but not a word prefix.
	assert.InDelta(t, 0.0, keyword.Score("script", "TypeScript is great", keyword.ModePrefix), 1e-6)
}

func TestScoreFuzzy(t *testing.T) {
	// "typescript" vs "typescripz": 1 edit, allowance floor(10/3)=3.
	assert.InDelta(t, 1.0, keyword.Score("typescripz", "TypeScript is great", keyword.ModeFuzzy), 1e-6)
	// Short terms get no edit allowance: floor(3/3)=1.
	assert.InDelta(t, 1.0, keyword.Score("grea", "great things", keyword.ModeFuzzy), 1e-6)
	// Way off.
	assert.InDelta(t, 0.0, keyword.Score("python", "TypeScript is great", keyword.ModeFuzzy), 1e-6)
}

func TestScoreFuzzyMultibyte(t *testing.T) {
	// "résumé" is 6 runes, so the allowance is floor(6/3)=2; the two
	// accent substitutions to reach "resume" fit within it. Counting
	// bytes would double both the distance and the apparent length.
	assert.InDelta(t, 1.0, keyword.Score("résumé", "send your resume today", keyword.ModeFuzzy), 1e-6)
	assert.InDelta(t, 1.0, keyword.Score("naïve", "a naive approach", keyword.ModeFuzzy), 1e-6)
}

func TestScoreFuzzyLengthPruning(t *testing.T) {
	// Length difference alone exceeds the allowance, so the term cannot match.
	assert.InDelta(t, 0.0, keyword.Score("go", "longwordhere", keyword.ModeFuzzy), 1e-6)
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"cat", "cut", 1},
		{"café", "cafe", 1},
		{"日本語", "日本", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, keyword.Levenshtein(tt.a, tt.b), "Levenshtein(%q, %q)", tt.a, tt.b)
	}
}
