package matcher

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// DescriptionSimilarity measures how alike two transaction descriptions are
// on a [0,1] scale. It is symmetric and case-insensitive.
//
// Two signals are combined by taking the larger: a normalized Levenshtein
// ratio over the whole strings, and a token overlap coefficient. The overlap
// term handles the common case where a bank feed renders a merchant name
// with extra noise ("NETFLIX.COM 866-579-7172" vs "Netflix"): a full-string
// edit distance punishes the noise heavily, but every token of the shorter
// description still appears in the longer one.
func DescriptionSimilarity(a, b string) float64 {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))

	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	ratio := levenshteinRatio(a, b)
	overlap := tokenOverlap(a, b)
	if overlap > ratio {
		return overlap
	}
	return ratio
}

func levenshteinRatio(a, b string) float64 {
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// tokenOverlap returns |A∩B| / min(|A|,|B|) over the alphanumeric tokens of
// each string.
func tokenOverlap(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}

	longer := make(map[string]bool, len(tb))
	for _, tok := range tb {
		longer[tok] = true
	}
	shared := 0
	for _, tok := range ta {
		if longer[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(ta))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	var tokens []string
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			tokens = append(tokens, f)
		}
	}
	return tokens
}
