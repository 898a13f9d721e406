package fetch

import (
	"html"
	"regexp"
	"strings"
)

// locationDelimiters splits a multi-location value such as "London /
// Remote" into its tokens (spec §4.1 rule 4, §8 boundary behavior).
var locationDelimiters = regexp.MustCompile(`[;/|•\n]`)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// StripHTML decodes HTML entities and removes tags, matching the
// original's strip_html.
func StripHTML(s string) string {
	unescaped := html.UnescapeString(s)
	stripped := htmlTagPattern.ReplaceAllString(unescaped, " ")
	fields := strings.Fields(stripped)
	return strings.Join(fields, " ")
}

// MatchesAnyTitlePattern reports whether title matches at least one
// pattern; an empty pattern set means the filter is disabled and every
// title passes.
func MatchesAnyTitlePattern(title string, patterns []*regexp.Regexp) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p.MatchString(title) {
			return true
		}
	}
	return false
}

// MatchesTargetLocation reports whether any delimited token of location
// contains any of the target substrings (case-insensitive); an empty
// target set disables the filter.
func MatchesTargetLocation(location string, targets []string) bool {
	if len(targets) == 0 {
		return true
	}
	tokens := locationDelimiters.Split(location, -1)
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		for _, target := range targets {
			if strings.Contains(tok, target) {
				return true
			}
		}
	}
	return false
}

// IsRelevantPosting applies both cheap filters together, the gate the
// fetcher runs before ever emitting a posting downstream.
func IsRelevantPosting(title, location string, titlePatterns []*regexp.Regexp, targetLocations []string) bool {
	return MatchesAnyTitlePattern(title, titlePatterns) && MatchesTargetLocation(location, targetLocations)
}

// MeetsMinDescriptionLength applies the --min-description-length post
// filter (spec §6): a minLength of 0 disables the check.
func MeetsMinDescriptionLength(description string, minLength int) bool {
	if minLength <= 0 {
		return true
	}
	return len(strings.TrimSpace(description)) >= minLength
}
