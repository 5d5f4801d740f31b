// Package similarity scores how alike two codes are.
package similarity

import (
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// Distance is the unit-cost Levenshtein distance between a and b, counted
// in code points.
func Distance(a, b string) int {
	return levenshtein.Distance(a, b, nil)
}

// Similarity returns 1 - Distance(a,b)/max(len(a),len(b)), lengths in code
// points. Two empty strings are identical.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(Distance(a, b))/float64(longest)
}
