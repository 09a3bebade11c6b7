package ctc

import (
	"strings"
	"unicode"
)

// TranscriptDiff measures how far a decoded transcript is from the expected
// text, as word-level edit distance.
type TranscriptDiff struct {
	EditDistance  int // words substituted, inserted, or deleted
	ExpectedWords int
	DecodedWords  int
}

// Exact reports a perfect match after folding.
func (d TranscriptDiff) Exact() bool {
	return d.EditDistance == 0
}

// ErrorRate returns the edit distance normalized by the expected word
// count. Decoding anything against an empty expectation rates 1.
func (d TranscriptDiff) ErrorRate() float64 {
	if d.ExpectedWords == 0 {
		if d.DecodedWords == 0 {
			return 0
		}
		return 1
	}
	return float64(d.EditDistance) / float64(d.ExpectedWords)
}

// CompareTranscripts diffs a decoded transcript against the expected text.
// Both sides are folded the way decoded text leaves Detokenize: case
// ignored, punctuation dropped, whitespace collapsed to word boundaries.
func CompareTranscripts(expected, decoded string) TranscriptDiff {
	exp := foldWords(expected)
	dec := foldWords(decoded)
	return TranscriptDiff{
		EditDistance:  wordEditDistance(exp, dec),
		ExpectedWords: len(exp),
		DecodedWords:  len(dec),
	}
}

// wordEditDistance is Levenshtein distance over word slices, computed two
// rows at a time.
func wordEditDistance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			best := prev[j-1] + cost
			if d := prev[j] + 1; d < best {
				best = d
			}
			if d := curr[j-1] + 1; d < best {
				best = d
			}
			curr[j] = best
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// foldWords lowercases, drops punctuation, and splits on whitespace.
func foldWords(s string) []string {
	folded := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Fields(folded)
}
