package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	"metasearch/searchservice/internal/cache"
	"metasearch/searchservice/internal/domain"
	"metasearch/searchservice/internal/metrics"
)

const (
	messageNoResults = "no results found"
	messageAllFailed = "all engines failed; no results available"
	clearAllSelector = "all"
)

type preparedSearch struct {
	keyword  string
	language string
	engines  []string
	limit    int
	cacheKey string
}

// prepareSearch validates and normalises a request. It performs no I/O.
func (s *Service) prepareSearch(request domain.SearchRequest) (preparedSearch, error) {
	keyword := strings.Join(strings.Fields(request.Keyword), " ")
	if keyword == "" {
		return preparedSearch{}, ErrInvalidKeyword
	}
	if utf8.RuneCountInString(keyword) > maxKeywordLength {
		return preparedSearch{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidKeyword, maxKeywordLength)
	}

	limit := request.Limit
	switch {
	case limit == 0:
		limit = defaultLimit
	case limit < 0:
		return preparedSearch{}, ErrInvalidLimit
	case limit > maxLimit:
		limit = maxLimit
	}

	engines, err := s.resolveEngines(request.Engines)
	if err != nil {
		return preparedSearch{}, err
	}

	lang := strings.TrimSpace(request.Language)
	if lang == "" {
		lang = s.defaultLanguage
	}
	lang, err = canonicalLanguage(lang)
	if err != nil {
		return preparedSearch{}, err
	}

	return preparedSearch{
		keyword:  keyword,
		language: lang,
		engines:  engines,
		limit:    limit,
		cacheKey: cache.ResultKey(engines, keyword, lang, limit),
	}, nil
}

// canonicalLanguage accepts a BCP 47 tag, tolerating "_" separators, and
// returns its canonical spelling.
func canonicalLanguage(raw string) (string, error) {
	tag, err := language.Parse(strings.ReplaceAll(raw, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, raw)
	}
	return tag.String(), nil
}

// HandleSearch serves one aggregated search. Only invalid input is returned
// as an error; engine, enrichment and suggestion failures degrade the
// response instead.
func (s *Service) HandleSearch(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	startedAt := time.Now()

	prepared, err := s.prepareSearch(request)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	suggestEngine := s.suggestionEngine(prepared.engines)

	if cached, ok := s.results.Get(prepared.cacheKey); ok {
		response := cached
		response.Keyword = prepared.keyword
		response.Suggestions = s.suggester.Suggestions(ctx, prepared.keyword, suggestEngine)
		response.CacheHit = true
		response.ResponseTimeMS = time.Since(startedAt).Milliseconds()
		s.stats.observeSearch(time.Since(startedAt))
		return response, nil
	}

	var (
		suggestions []string
		wg          sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		suggestions = s.suggester.Suggestions(ctx, prepared.keyword, suggestEngine)
	}()
	response, cacheable := s.executeSearch(ctx, prepared)
	wg.Wait()

	if cacheable && ctx.Err() == nil {
		s.results.Put(prepared.cacheKey, response, 0)
	}

	response.Suggestions = suggestions
	response.ResponseTimeMS = time.Since(startedAt).Milliseconds()
	s.stats.observeSearch(time.Since(startedAt))
	return response, nil
}

// executeSearch runs fan-out, merge and enrichment. The returned flag is
// false when no engine succeeded, in which case the response must not be
// cached.
func (s *Service) executeSearch(ctx context.Context, prepared preparedSearch) (domain.SearchResponse, bool) {
	outcomes := s.aggregate(ctx, domain.EngineQuery{
		Keyword:  prepared.keyword,
		Language: prepared.language,
		Limit:    prepared.limit,
	}, prepared.engines)

	merged := Merge(outcomes, s.preferred, prepared.limit)
	metrics.MergedResults.Observe(float64(merged.UniqueCount))
	if merged.Dropped > 0 {
		s.logger.Debug("dropped results without a usable url",
			slog.String("keyword", prepared.keyword),
			slog.Int("dropped", merged.Dropped),
		)
	}

	results := s.enricher.Enrich(ctx, merged.Results, prepared.language)
	statuses, used, failed := engineStatuses(outcomes)

	response := domain.SearchResponse{
		Success:         true,
		Keyword:         prepared.keyword,
		Language:        prepared.language,
		Engines:         statuses,
		EnginesUsed:     used,
		EnginesFailed:   failed,
		Results:         results,
		TotalResults:    merged.UniqueCount,
		TotalRawResults: merged.RawCount,
		Page:            1,
		PerPage:         prepared.limit,
		TotalPages:      (merged.UniqueCount + prepared.limit - 1) / prepared.limit,
	}

	switch {
	case len(used) == 0:
		response.Message = messageAllFailed
		s.logger.Warn("every engine failed",
			slog.String("keyword", prepared.keyword),
			slog.String("engines", strings.Join(prepared.engines, ",")),
		)
		return response, false
	case len(results) == 0:
		response.Message = messageNoResults
	}
	return response, true
}

func (s *Service) suggestionEngine(engines []string) string {
	for _, name := range engines {
		if name == s.preferred {
			return name
		}
	}
	return engines[0]
}

// Suggestions serves the standalone suggestion lookup. An empty engine uses
// the preferred engine's namespace.
func (s *Service) Suggestions(ctx context.Context, keyword, engine string) ([]string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrInvalidKeyword
	}
	if utf8.RuneCountInString(keyword) < minSuggestionRunes {
		return nil, ErrKeywordTooShort
	}
	name := s.preferred
	if strings.TrimSpace(engine) != "" {
		resolved, err := s.resolveEngine(engine)
		if err != nil {
			return nil, err
		}
		name = resolved
	}
	return s.suggester.Suggestions(ctx, keyword, name), nil
}

// ClearCache drops cached results. An empty selector or "all" flushes the
// whole result cache; an engine id removes every entry whose engine scope
// includes that engine.
func (s *Service) ClearCache(selector string) (int, error) {
	selector = strings.ToLower(strings.TrimSpace(selector))
	if selector == "" || selector == clearAllSelector {
		removed := s.results.InvalidateAll()
		s.logger.Info("result cache cleared", slog.Int("removed", removed))
		return removed, nil
	}

	engine, err := s.resolveEngine(selector)
	if err != nil {
		return 0, err
	}
	removed := s.results.InvalidateFunc(func(key string) bool {
		return cache.ScopeIncludes(key, engine)
	})
	s.logger.Info("result cache cleared for engine",
		slog.String("engine", engine),
		slog.Int("removed", removed),
	)
	return removed, nil
}

func (s *Service) CacheStats() domain.CacheStats {
	breakdown := make(map[string]int, len(s.names))
	for _, name := range s.names {
		breakdown[name] = 0
	}
	for _, key := range s.results.Keys() {
		for _, name := range cache.EngineScope(key) {
			breakdown[name]++
		}
	}

	stats := domain.CacheStats{
		CacheSummary:       s.results.Stats(),
		PerEngineBreakdown: breakdown,
		Images:             s.enricher.cache.Stats(),
	}
	if s.suggester != nil {
		stats.Suggestions = s.suggester.cache.Stats()
	}
	return stats
}
