package common

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// CleanHTMLText strips markup and entities and collapses whitespace.
func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = tagPattern.ReplaceAllString(value, " ")
	value = html.UnescapeString(value)
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// Truncate shortens value to at most maxRunes runes, appending "…" when cut.
func Truncate(value string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(value) <= maxRunes {
		return value
	}
	runes := []rune(value)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}
