package bookmark

import (
	"strings"
	"unicode"
)

// SearchTerms splits a free-text query into distinct lower-cased tokens made of
// letters and digits. Repositories match bookmarks containing any of them.
func SearchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// MatchesTerms reports whether any term appears as a token of the bookmark's
// title, description or tags. It is the reference semantics for repositories
// that cannot delegate search to a text index.
func MatchesTerms(b Bookmark, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	tokens := make(map[string]struct{})
	add := func(s string) {
		for _, t := range SearchTerms(s) {
			tokens[t] = struct{}{}
		}
	}
	add(b.Title)
	add(b.Description)
	for _, tag := range b.Tags {
		add(tag)
	}
	for _, term := range terms {
		if _, ok := tokens[term]; ok {
			return true
		}
	}
	return false
}

// NormalizeTags trims every tag and drops the blank ones, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
