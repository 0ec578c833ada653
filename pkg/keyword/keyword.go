// Package keyword provides lexical scoring between a query and document content.
//
// Scores are the ratio of query tokens matched in the content, in [0, 1].
// Three matching modes are supported: exact substring containment, word
// prefix, and Levenshtein-bounded fuzzy matching.
package keyword

import (
	"strings"
	"unicode"
)

// Mode selects how query terms are matched against content.
type Mode string

const (
	// ModeExact matches a term when it appears as a substring of the content.
	ModeExact Mode = "exact"

	// ModePrefix matches a term when some content word starts with it.
	ModePrefix Mode = "prefix"

	// ModeFuzzy matches a term when some content word is within
	// floor(term length in runes / 3) edits of it.
	ModeFuzzy Mode = "fuzzy"
)

// Tokenize lowercases text and splits it on non-word characters,
// dropping empty tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// Score returns the fraction of query tokens matched in content using the
// given mode. An empty query scores 0. Unknown modes fall back to exact.
func Score(query, content string, mode Mode) float32 {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return 0
	}

	loweredContent := strings.ToLower(content)
	var words []string
	if mode == ModePrefix || mode == ModeFuzzy {
		words = Tokenize(content)
	}

	matched := 0
	for _, term := range terms {
		switch mode {
		case ModePrefix:
			if anyWordHasPrefix(words, term) {
				matched++
			}
		case ModeFuzzy:
			if anyWordFuzzyMatches(words, term) {
				matched++
			}
		default:
			if strings.Contains(loweredContent, term) {
				matched++
			}
		}
	}

	return float32(matched) / float32(len(terms))
}

func anyWordHasPrefix(words []string, term string) bool {
	for _, w := range words {
		if strings.HasPrefix(w, term) {
			return true
		}
	}
	return false
}

func anyWordFuzzyMatches(words []string, term string) bool {
	termRunes := []rune(term)
	maxDist := len(termRunes) / 3
	for _, w := range words {
		wordRunes := []rune(w)
		// Length pruning: edit distance is at least the length difference.
		diff := len(wordRunes) - len(termRunes)
		if diff < 0 {
			diff = -diff
		}
		if diff > maxDist {
			continue
		}
		if levenshteinRunes(termRunes, wordRunes) <= maxDist {
			return true
		}
	}
	return false
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	return levenshteinRunes([]rune(a), []rune(b))
}

// levenshteinRunes computes edit distance with a two-row dynamic
// programming table.
func levenshteinRunes(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
