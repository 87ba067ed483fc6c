package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"metasearch/searchservice/internal/cache"
	"metasearch/searchservice/internal/domain"
)

const (
	defaultEngineTimeout   = 10 * time.Second
	defaultLimit           = 10
	maxLimit               = 100
	maxKeywordLength       = 500
	defaultPreferredEngine = "google"
	defaultReportInterval  = time.Hour
)

type Service struct {
	engines         map[string]Engine
	names           []string
	aliases         map[string]string
	timeout         time.Duration
	preferred       string
	defaultLanguage string
	retry           RetryConfig
	switches        EngineSwitch
	results         *cache.TTL[domain.SearchResponse]
	enricher        *Enricher
	suggester       *Suggester
	logger          *slog.Logger
	stats           *statsTracker
	reportInterval  time.Duration

	healthMu sync.Mutex
	health   map[string]*engineHealth

	backgroundOnce sync.Once
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPreferredEngine sets the engine whose results rank first.
func WithPreferredEngine(name string) ServiceOption {
	return func(s *Service) {
		s.preferred = strings.ToLower(strings.TrimSpace(name))
	}
}

func WithDefaultLanguage(lang string) ServiceOption {
	return func(s *Service) {
		if lang = strings.TrimSpace(lang); lang != "" {
			s.defaultLanguage = lang
		}
	}
}

func WithRetryConfig(cfg RetryConfig) ServiceOption {
	return func(s *Service) {
		s.retry = cfg
	}
}

func WithResultCache(c *cache.TTL[domain.SearchResponse]) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.results = c
		}
	}
}

func WithEnricher(e *Enricher) ServiceOption {
	return func(s *Service) {
		if e != nil {
			s.enricher = e
		}
	}
}

func WithSuggester(sg *Suggester) ServiceOption {
	return func(s *Service) {
		s.suggester = sg
	}
}

func WithEngineSwitch(sw EngineSwitch) ServiceOption {
	return func(s *Service) {
		s.switches = sw
	}
}

func WithVersion(version string) ServiceOption {
	return func(s *Service) {
		s.stats.version = version
	}
}

func WithReportInterval(interval time.Duration) ServiceOption {
	return func(s *Service) {
		if interval > 0 {
			s.reportInterval = interval
		}
	}
}

func NewService(engines []Engine, timeout time.Duration, opts ...ServiceOption) *Service {
	registry := make(map[string]Engine, len(engines))
	aliases := make(map[string]string)
	for _, engine := range engines {
		if engine == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(engine.Name()))
		if name == "" {
			continue
		}
		registry[name] = engine
		for _, alias := range engineAliases(name) {
			aliases[alias] = name
		}
	}
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	if timeout <= 0 {
		timeout = defaultEngineTimeout
	}

	svc := &Service{
		engines:         registry,
		names:           names,
		aliases:         aliases,
		timeout:         timeout,
		preferred:       defaultPreferredEngine,
		defaultLanguage: domain.DefaultLanguage,
		retry:           DefaultRetryConfig(),
		logger:          slog.Default(),
		stats:           newStatsTracker(time.Now()),
		reportInterval:  defaultReportInterval,
		health:          make(map[string]*engineHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.results == nil {
		svc.results = cache.New[domain.SearchResponse](cache.Options{
			Name:     "results",
			Capacity: 1000,
			TTL:      30 * time.Minute,
			Logger:   svc.logger,
		})
	}
	if svc.enricher == nil {
		svc.enricher = NewEnricher(EnricherConfig{Logger: svc.logger})
	}
	return svc
}

func engineAliases(name string) []string {
	switch name {
	case "duckduckgo":
		return []string{"ddg", "duck"}
	case "google":
		return []string{"g"}
	default:
		return nil
	}
}

// StartBackground runs cache sweeps and the periodic resource report until
// ctx is done.
func (s *Service) StartBackground(ctx context.Context) {
	s.backgroundOnce.Do(func() {
		s.results.Start(ctx)
		s.enricher.cache.Start(ctx)
		if s.suggester != nil {
			s.suggester.cache.Start(ctx)
		}
		go s.runResourceReport(ctx)
	})
}

func (s *Service) Close() {
	s.results.Close()
	s.enricher.cache.Close()
	if s.suggester != nil {
		s.suggester.cache.Close()
	}
}

// EngineNames returns every registered engine id, sorted.
func (s *Service) EngineNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *Service) Engines() []domain.EngineInfo {
	items := make([]domain.EngineInfo, 0, len(s.names))
	for _, name := range s.names {
		info := s.engines[name].Info()
		info.Name = name
		if info.Label == "" {
			info.Label = name
		}
		info.Enabled = s.engineEnabled(name)
		items = append(items, info)
	}
	return items
}

func (s *Service) engineEnabled(name string) bool {
	if s.switches == nil {
		return true
	}
	return s.switches.Enabled(name)
}

// resolveEngines lower-cases, resolves aliases, deduplicates and sorts the
// requested engine ids.
func (s *Service) resolveEngines(requested []string) ([]string, error) {
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, raw := range requested {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if canonical, ok := s.aliases[name]; ok {
			name = canonical
		}
		if _, ok := s.engines[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, raw)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, ErrNoEngines
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) resolveEngine(raw string) (string, error) {
	names, err := s.resolveEngines([]string{raw})
	if err != nil {
		return "", err
	}
	return names[0], nil
}
