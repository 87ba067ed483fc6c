package cache

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	MultiScope        = "multi"
	suggestionsPrefix = "suggestions"
	imagePrefix       = "image"
)

// NormalizeKeyword folds case and collapses whitespace so equivalent
// keywords share one cache entry.
func NormalizeKeyword(keyword string) string {
	return strings.ToLower(strings.Join(strings.Fields(keyword), " "))
}

// ResultKey builds <scope>:<engines>:<language>:<limit>:<keyword>. engines
// must already be deduplicated and sorted. The scope is the engine id for
// single-engine requests so a prefix of "<engine>:" selects them. The keyword
// goes last and is query-escaped, so no user input can shift a separator.
func ResultKey(engines []string, keyword, language string, limit int) string {
	scope := MultiScope
	if len(engines) == 1 {
		scope = engines[0]
	}
	var b strings.Builder
	b.WriteString(scope)
	b.WriteByte(':')
	b.WriteString(strings.Join(engines, ","))
	b.WriteByte(':')
	b.WriteString(url.QueryEscape(strings.ToLower(strings.TrimSpace(language))))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(limit))
	b.WriteByte(':')
	b.WriteString(url.QueryEscape(NormalizeKeyword(keyword)))
	return b.String()
}

// EngineScope returns the engine ids encoded in a result key.
func EngineScope(key string) []string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || parts[1] == "" {
		return nil
	}
	return strings.Split(parts[1], ",")
}

func ScopeIncludes(key, engine string) bool {
	for _, name := range EngineScope(key) {
		if name == engine {
			return true
		}
	}
	return false
}

func SuggestionKey(engine, keyword string) string {
	return suggestionsPrefix + ":" + engine + ":" + NormalizeKeyword(keyword)
}

func ImageKey(url string) string {
	return imagePrefix + ":" + url
}
