// Package plate canonicalizes license plate text so driver-registered plates
// can be compared against OCR reads from the vision pipeline.
package plate

import "strings"

// Normalize upper-cases the raw text and strips everything outside [A-Z0-9].
// Empty or all-punctuation input normalizes to "".
func Normalize(raw string) string {
	upper := strings.ToUpper(raw)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Distance is the Levenshtein edit distance (insert, delete, substitute)
// between two strings.
func Distance(s1, s2 string) int {
	if len(s1) < len(s2) {
		s1, s2 = s2, s1
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 0; i < len(s1); i++ {
		curr[0] = i + 1
		for j := 0; j < len(s2); j++ {
			cost := 0
			if s1[i] != s2[j] {
				cost = 1
			}
			curr[j+1] = minOf(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

// FuzzyEquals reports whether two plates refer to the same vehicle,
// tolerating a single OCR transcription error. Both inputs are normalized
// first; edit distance must be strictly less than 2. Empty plates never
// match a plate of length 2 or more.
func FuzzyEquals(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return true
	}
	return Distance(na, nb) < 2
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
