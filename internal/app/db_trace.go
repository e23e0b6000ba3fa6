package app

import (
	"regexp"
	"strings"
)

// maxTracedQueryLength bounds the statement text attached to a span; the
// full statement stays out of trace storage.
const maxTracedQueryLength = 512

var sqlWhitespaceRegex = regexp.MustCompile(`\s+`)

// formatDBQueryForTrace collapses a statement onto one line and truncates
// it for use as a span attribute.
func formatDBQueryForTrace(query string) string {
	collapsed := sqlWhitespaceRegex.ReplaceAllString(strings.TrimSpace(query), " ")
	if len(collapsed) > maxTracedQueryLength {
		return collapsed[:maxTracedQueryLength] + "..."
	}
	return collapsed
}
