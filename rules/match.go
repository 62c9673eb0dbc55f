package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// containsAny reports whether lower contains any of the phrases.
// lower must already be lower-cased.
func containsAny(lower string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// keywordSet matches whole-word-prefixed keywords case-insensitively and
// remembers which ones were seen, in declaration order.
type keywordSet struct {
	words    []string
	patterns []*regexp.Regexp
}

// newKeywordSet matches keywords at the start of a word, so "drug" also matches "drugs"
func newKeywordSet(words ...string) *keywordSet {
	return buildKeywordSet(`(?i)\b%s`, words)
}

// newWordSet matches whole words only, so "polish" does not match "polished"
func newWordSet(words ...string) *keywordSet {
	return buildKeywordSet(`(?i)\b%s\b`, words)
}

func buildKeywordSet(format string, words []string) *keywordSet {
	ks := &keywordSet{words: words}
	for _, w := range words {
		ks.patterns = append(ks.patterns, regexp.MustCompile(fmt.Sprintf(format, regexp.QuoteMeta(w))))
	}
	return ks
}

// Matches returns the keywords present in text in declaration order
func (ks *keywordSet) Matches(text string) []string {
	var found []string
	for i, p := range ks.patterns {
		if p.MatchString(text) {
			found = append(found, ks.words[i])
		}
	}
	return found
}

// Any reports whether at least one keyword is present in text
func (ks *keywordSet) Any(text string) bool {
	for _, p := range ks.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// firstN returns at most n items of s
func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func pass(msg string) Verdict    { return Verdict{Severity: SeverityPass, Message: msg} }
func warning(msg string) Verdict { return Verdict{Severity: SeverityWarning, Message: msg} }
func fail(msg string) Verdict    { return Verdict{Severity: SeverityFail, Message: msg} }
