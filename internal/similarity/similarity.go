// Package similarity scores how close two strings are using a normalized
// Levenshtein distance over Unicode code points.
package similarity

import "strings"

// Score returns a value in [0,1]. Inputs are trimmed and lowercased first;
// equal inputs score 1 and an empty input against a non-empty one scores 0.
func Score(a, b string) float64 {
	ra := []rune(strings.ToLower(strings.TrimSpace(a)))
	rb := []rune(strings.ToLower(strings.TrimSpace(b)))

	if string(ra) == string(rb) {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(Distance(ra, rb))/float64(longest)
}

// Distance is the edit distance between two rune slices, computed with two
// rolling rows.
func Distance(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
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
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
