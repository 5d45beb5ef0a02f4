// Package topic turns free text and tool arguments into the normalized
// vocabulary the baseline model learns and the detector compares.
package topic

import (
	"strings"
)

// MinLength is the shortest token kept as a topic.
const MinLength = 2

var stopwords = map[string]struct{}{
	"the": {}, "is": {}, "at": {}, "to": {}, "for": {}, "of": {}, "and": {},
	"or": {}, "in": {}, "on": {}, "by": {}, "with": {}, "from": {},
}

// IsStopword reports whether w is dropped during extraction.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Extract returns the distinct topics of text in order of first appearance.
//
// Compound identifiers are split at every lowercase-to-uppercase transition
// before case folding, so "SearchFiles" and "search files" yield the same
// topics. Everything outside [a-z0-9] separates tokens.
func Extract(text string) []string {
	if text == "" {
		return nil
	}

	var split strings.Builder
	split.Grow(len(text) + 8)
	var prev rune
	for _, r := range text {
		if prev >= 'a' && prev <= 'z' && r >= 'A' && r <= 'Z' {
			split.WriteByte(' ')
		}
		split.WriteRune(r)
		prev = r
	}

	folded := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, strings.ToLower(split.String()))

	var topics []string
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(folded) {
		if len(w) < MinLength || IsStopword(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		topics = append(topics, w)
	}
	return topics
}

// Set builds a membership set from a topic list.
func Set(topics []string) map[string]struct{} {
	s := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		s[t] = struct{}{}
	}
	return s
}
