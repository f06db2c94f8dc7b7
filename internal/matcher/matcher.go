// Package matcher grades free-text answers against a set of accepted answers.
package matcher

import (
	"regexp"
	"strings"
)

// Overlap threshold as a ratio: a candidate matches when at least
// overlapNum/overlapDen of its words appear in the submission.
const (
	overlapNum = 4
	overlapDen = 5
)

// RE2 \s omits \v and U+0085, which are whitespace to strings.Fields.
var punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Z}\v\x{85}]`)

// Normalize lower-cases s, drops everything that is not a word character or
// whitespace and collapses whitespace runs to a single space.
func Normalize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = punctuation.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Matches reports whether submitted is accepted by any of the candidates.
// Candidates are tried in order and the first match wins.
func Matches(submitted string, candidates []string) bool {
	norm := Normalize(submitted)
	if norm == "" {
		return false
	}
	words := wordSet(norm)
	for _, candidate := range candidates {
		if matchOne(norm, words, Normalize(candidate)) {
			return true
		}
	}
	return false
}

func matchOne(submitted string, submittedWords map[string]struct{}, candidate string) bool {
	if submitted == candidate {
		return true
	}
	want := wordSet(candidate)
	if len(want) == 0 {
		return false
	}
	hits := 0
	for w := range want {
		if _, ok := submittedWords[w]; ok {
			hits++
		}
	}
	return hits*overlapDen >= len(want)*overlapNum
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
