package ingest

import (
	"regexp"
	"strings"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Slugify lowercases text and collapses whitespace runs into hyphens.
// Non-Latin characters (the source workspace is Korean) pass through.
func Slugify(text string) string {
	return whitespaceRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "-")
}
