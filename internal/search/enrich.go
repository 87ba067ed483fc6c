package search

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/text/language"

	"metasearch/searchservice/internal/cache"
	"metasearch/searchservice/internal/domain"
	"metasearch/searchservice/internal/metrics"
)

const (
	defaultImageTimeout     = 3 * time.Second
	defaultImageConcurrency = 8
)

var countryByLanguage = map[string]string{
	"zh-tw": "tw",
	"zh-cn": "cn",
	"en-us": "us",
	"en-gb": "uk",
	"ja":    "jp",
	"ko":    "kr",
	"fr":    "fr",
	"de":    "de",
	"es":    "es",
	"ru":    "ru",
}

type EnricherConfig struct {
	Images      ImageProvider
	Cache       *cache.TTL[string]
	Timeout     time.Duration
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Enricher fills the derived fields of merged results. Nothing it does can
// fail a request: an unresolved field is left at its fallback value.
type Enricher struct {
	images      ImageProvider
	cache       *cache.TTL[string]
	timeout     time.Duration
	concurrency int64
	logger      *slog.Logger
	now         func() time.Time
}

func NewEnricher(cfg EnricherConfig) *Enricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultImageTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultImageConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New[string](cache.Options{
			Name:     "images",
			Capacity: 2000,
			TTL:      24 * time.Hour,
			Logger:   cfg.Logger,
		})
	}
	return &Enricher{
		images:      cfg.Images,
		cache:       cfg.Cache,
		timeout:     cfg.Timeout,
		concurrency: int64(cfg.Concurrency),
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

// Enrich returns a copy of results, same length and order, with source
// label, language, country, timestamp and image filled in.
func (e *Enricher) Enrich(ctx context.Context, results []domain.AggregatedResult, lang string) []domain.AggregatedResult {
	out := make([]domain.AggregatedResult, len(results))
	copy(out, results)

	now := e.now().UTC()
	country := CountryTag(lang)
	for i := range out {
		out[i].SourceLabel = SourceLabel(out[i].CanonicalURL)
		out[i].Language = lang
		out[i].CountryTag = country
		out[i].Timestamp = now
	}

	if e.images == nil || len(out) == 0 {
		return out
	}

	sem := semaphore.NewWeighted(e.concurrency)
	var wg sync.WaitGroup
	for i := range out {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Remaining results keep no image.
			break
		}
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer sem.Release(1)
			out[index].ImageURL = e.lookupImage(ctx, out[index].CanonicalURL)
		}(i)
	}
	wg.Wait()
	return out
}

func (e *Enricher) lookupImage(ctx context.Context, pageURL string) string {
	key := cache.ImageKey(pageURL)
	if cached, ok := e.cache.Get(key); ok {
		metrics.ImageLookupsTotal.WithLabelValues("cached").Inc()
		return cached
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	image, err := e.images.FetchImage(lookupCtx, pageURL)
	if err != nil {
		metrics.ImageLookupsTotal.WithLabelValues("error").Inc()
		e.logger.Debug("image lookup failed",
			slog.String("url", pageURL),
			slog.String("error", err.Error()),
		)
		return ""
	}
	image = strings.TrimSpace(image)
	if !isAbsoluteHTTPURL(image) {
		metrics.ImageLookupsTotal.WithLabelValues("missing").Inc()
		return ""
	}
	metrics.ImageLookupsTotal.WithLabelValues("found").Inc()
	e.cache.Put(key, image, 0)
	return image
}

func isAbsoluteHTTPURL(value string) bool {
	if value == "" {
		return false
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// SourceLabel is the first label of the host with a leading "www." removed,
// e.g. "github" for https://www.github.com/x.
func SourceLabel(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return domain.UnknownSource
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if host == "" {
		return domain.UnknownSource
	}
	if net.ParseIP(host) != nil {
		return host
	}
	label, _, _ := strings.Cut(host, ".")
	if label == "" {
		return domain.UnknownSource
	}
	return label
}

// CountryTag maps a language tag to a lower-case country code, falling back
// to "global" when no region can be determined.
func CountryTag(lang string) string {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "_", "-"))
	if key == "" {
		return domain.GlobalCountry
	}
	if country, ok := countryByLanguage[key]; ok {
		return country
	}
	tag, err := language.Parse(key)
	if err != nil {
		return domain.GlobalCountry
	}
	region, confidence := tag.Region()
	if confidence != language.Exact || !region.IsCountry() {
		return domain.GlobalCountry
	}
	return strings.ToLower(region.String())
}
