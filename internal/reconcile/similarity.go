package reconcile

import "strings"

// Similarity returns a normalized [0,1] string similarity based on
// Levenshtein distance, case-insensitive. 1.0 means identical.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		if a == "" {
			return 0
		}
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	dist := levenshtein([]rune(a), []rune(b))
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// levenshtein computes edit distance with a rolling single-row buffer.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur := row[j]
			next := prev + cost
			if del := row[j] + 1; del < next {
				next = del
			}
			if ins := row[j-1] + 1; ins < next {
				next = ins
			}
			row[j] = next
			prev = cur
		}
	}
	return row[len(b)]
}
