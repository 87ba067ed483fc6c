package search

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"metasearch/searchservice/internal/cache"
	"metasearch/searchservice/internal/metrics"
)

const (
	defaultSuggestionTimeout = 2 * time.Second
	defaultMaxSuggestions    = 10
	minSuggestionRunes       = 2
)

type SuggesterConfig struct {
	Provider SuggestionProvider
	Cache    *cache.TTL[[]string]
	Timeout  time.Duration
	Max      int
	Logger   *slog.Logger
}

type Suggester struct {
	provider SuggestionProvider
	cache    *cache.TTL[[]string]
	timeout  time.Duration
	max      int
	logger   *slog.Logger
}

func NewSuggester(cfg SuggesterConfig) *Suggester {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSuggestionTimeout
	}
	if cfg.Max <= 0 {
		cfg.Max = defaultMaxSuggestions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New[[]string](cache.Options{
			Name:     "suggestions",
			Capacity: 500,
			TTL:      24 * time.Hour,
			Logger:   cfg.Logger,
		})
	}
	return &Suggester{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		timeout:  cfg.Timeout,
		max:      cfg.Max,
		logger:   cfg.Logger,
	}
}

// Suggestions returns at most Max completions for keyword. Short input and
// every provider failure yield an empty list; successful lookups, empty
// ones included, are cached per engine and keyword.
func (s *Suggester) Suggestions(ctx context.Context, keyword, engine string) []string {
	keyword = strings.TrimSpace(keyword)
	if s == nil || s.provider == nil || utf8.RuneCountInString(keyword) < minSuggestionRunes {
		metrics.SuggestionRequestsTotal.WithLabelValues(engine, "skipped").Inc()
		return []string{}
	}

	key := cache.SuggestionKey(engine, keyword)
	if cached, ok := s.cache.Get(key); ok {
		metrics.SuggestionRequestsTotal.WithLabelValues(engine, "cached").Inc()
		return cached
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	items, err := s.provider.Suggest(lookupCtx, keyword)
	if err != nil {
		metrics.SuggestionRequestsTotal.WithLabelValues(engine, "error").Inc()
		s.logger.Debug("suggestion lookup failed",
			slog.String("engine", engine),
			slog.String("keyword", keyword),
			slog.String("error", err.Error()),
		)
		return []string{}
	}

	out := make([]string, 0, min(len(items), s.max))
	for _, item := range items {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == s.max {
			break
		}
	}
	metrics.SuggestionRequestsTotal.WithLabelValues(engine, "ok").Inc()
	s.cache.Put(key, out, 0)
	return out
}
