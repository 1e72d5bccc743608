package main

import (
	"strings"
	"unicode"
)

// normalizeAnswer lowercases, trims, and collapses interior whitespace so
// that "The  Beatles " matches "the beatles".
func normalizeAnswer(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))

	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// levenshtein computes the edit distance between two strings, by rune.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// fuzzyMatch reports whether the submitted value matches the correct one
// within the given edit-distance threshold. Empty submissions never match,
// even against an empty correct value.
func fuzzyMatch(submitted, correct string, threshold int) bool {
	submitted = normalizeAnswer(submitted)
	correct = normalizeAnswer(correct)

	if submitted == "" {
		return false
	}
	if threshold <= 0 {
		return submitted == correct
	}
	return levenshtein(submitted, correct) <= threshold
}
