package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"metasearch/searchservice/internal/domain"
	"metasearch/searchservice/internal/search"
	"metasearch/searchservice/internal/settings"
)

type SearchService interface {
	HandleSearch(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	Suggestions(ctx context.Context, keyword, engine string) ([]string, error)
	ClearCache(selector string) (int, error)
	CacheStats() domain.CacheStats
	Stats() domain.ServiceStats
	TrackRequest()
	EngineNames() []string
	Engines() []domain.EngineInfo
	EngineDiagnostics() []domain.EngineDiagnostics
}

type EngineSettingsService interface {
	List() []domain.EngineRuntimeConfig
	Update(ctx context.Context, patch domain.EngineRuntimePatch) (domain.EngineRuntimeConfig, error)
}

type Server struct {
	search   SearchService
	settings EngineSettingsService
	logger   *slog.Logger

	rateLimitRequests int
	rateLimitWindow   time.Duration
	trustedProxies    []netip.Prefix
}

const (
	defaultRateLimitRequests = 100
	defaultRateLimitWindow   = 15 * time.Minute
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithEngineSettings(settings EngineSettingsService) ServerOption {
	return func(s *Server) {
		s.settings = settings
	}
}

// WithRateLimit sets the per-client budget for search routes. A non-positive
// request count disables limiting.
func WithRateLimit(requests int, window time.Duration) ServerOption {
	return func(s *Server) {
		s.rateLimitRequests = requests
		s.rateLimitWindow = window
	}
}

// WithTrustedProxies lists the peers, as addresses or CIDR prefixes, whose
// X-Forwarded-For and X-Real-IP headers identify the client for rate
// limiting. Invalid entries are skipped.
func WithTrustedProxies(proxies []string) ServerOption {
	return func(s *Server) {
		s.trustedProxies = parseTrustedProxies(proxies)
	}
}

func parseTrustedProxies(values []string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(value); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(value); err == nil {
			addr = addr.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return prefixes
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:            searchService,
		logger:            slog.Default(),
		rateLimitRequests: defaultRateLimitRequests,
		rateLimitWindow:   defaultRateLimitWindow,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(loggingMiddleware(s.logger))
	r.Use(metricsMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "resource not found: "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Get("/healthcheck", s.handleHealthcheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(countRequests(s.search))
		if s.rateLimitRequests > 0 && s.rateLimitWindow > 0 {
			r.Use(newClientRateLimiter(s.rateLimitRequests, s.rateLimitWindow, s.trustedProxies).middleware)
		}
		r.Get("/search", s.handleSearchQuery)
		r.Post("/search/multi", s.handleSearchMulti)
		r.Post("/search/all", s.handleSearchAll)
		r.Post("/search/{engine}", s.handleSearchEngine)
		r.Get("/api/suggestions", s.handleSuggestions)
	})

	r.Post("/api/cache/clear", s.handleCacheClear)
	r.Post("/api/cache/clear/{engine}", s.handleCacheClear)
	r.Get("/api/cache/stats", s.handleCacheStats)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/engines", s.handleEngines)
	r.Get("/api/engines/health", s.handleEnginesHealth)
	r.Get("/api/settings/engines", s.handleEngineSettingsList)
	r.Patch("/api/settings/engines", s.handleEngineSettingsUpdate)

	return otelhttp.NewHandler(r, "metasearch",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	stats := s.search.Stats()
	uptime := time.Duration(stats.UptimeSeconds) * time.Second
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"message":       "search service is running",
		"version":       stats.Version,
		"uptime":        uptime.String(),
		"uptimeSeconds": stats.UptimeSeconds,
		"engines":       s.search.EngineNames(),
		"timestamp":     time.Now().UTC(),
	})
}

type searchPayload struct {
	Keyword  string   `json:"keyword"`
	Engines  []string `json:"engines"`
	Language string   `json:"lang"`
	Limit    int      `json:"limit"`
}

func (p searchPayload) request() domain.SearchRequest {
	return domain.SearchRequest{
		Keyword:  p.Keyword,
		Engines:  p.Engines,
		Language: p.Language,
		Limit:    p.Limit,
	}
}

func (s *Server) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseInt(query.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	engines := parseCSV(query.Get("engines"))
	if engines == nil {
		engines = s.search.EngineNames()
	}
	s.runSearch(w, r, domain.SearchRequest{
		Keyword:  query.Get("q"),
		Engines:  engines,
		Language: query.Get("lang"),
		Limit:    limit,
	})
}

func (s *Server) handleSearchMulti(w http.ResponseWriter, r *http.Request) {
	var payload searchPayload
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	// An absent list means every configured engine; an explicit empty list is rejected.
	if payload.Engines == nil {
		payload.Engines = s.search.EngineNames()
	}
	s.runSearch(w, r, payload.request())
}

func (s *Server) handleSearchAll(w http.ResponseWriter, r *http.Request) {
	var payload searchPayload
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	payload.Engines = s.search.EngineNames()
	if len(payload.Engines) == 0 {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "no search engines are configured")
		return
	}
	s.runSearch(w, r, payload.request())
}

func (s *Server) handleSearchEngine(w http.ResponseWriter, r *http.Request) {
	var payload searchPayload
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	payload.Engines = []string{chi.URLParam(r, "engine")}
	s.runSearch(w, r, payload.request())
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, request domain.SearchRequest) {
	response, err := s.search.HandleSearch(r.Context(), request)
	if err != nil {
		status, code := searchErrorStatus(err)
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "search request failed",
			slog.String("keyword", truncate(strings.TrimSpace(request.Keyword), 80)),
			slog.Any("engines", request.Engines),
			slog.String("error", err.Error()),
		)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func searchErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, search.ErrInvalidKeyword),
		errors.Is(err, search.ErrKeywordTooShort),
		errors.Is(err, search.ErrInvalidLimit),
		errors.Is(err, search.ErrInvalidLanguage),
		errors.Is(err, search.ErrUnknownEngine),
		errors.Is(err, search.ErrNoEngines):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request_cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	engine := strings.TrimSpace(r.URL.Query().Get("engine"))

	suggestions, err := s.search.Suggestions(r.Context(), keyword, engine)
	if err != nil {
		status, code := searchErrorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"keyword":        keyword,
		"engine":         engine,
		"suggestions":    suggestions,
		"count":          len(suggestions),
		"responseTimeMs": time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	selector := chi.URLParam(r, "engine")
	cleared, err := s.search.ClearCache(selector)
	if err != nil {
		status, code := searchErrorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	scope := strings.ToLower(strings.TrimSpace(selector))
	if scope == "" {
		scope = "all"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"scope":     scope,
		"cleared":   cleared,
		"message":   fmt.Sprintf("cleared %d cached entries (%s)", cleared, scope),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.search.CacheStats())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.search.Stats())
}

func (s *Server) handleEngines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.Engines(),
	})
}

func (s *Server) handleEnginesHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.EngineDiagnostics(),
	})
}

func (s *Server) handleEngineSettingsList(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "engine settings are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.settings.List(),
	})
}

func (s *Server) handleEngineSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "engine settings are not configured")
		return
	}
	var payload struct {
		Engine   string  `json:"engine"`
		Enabled  *bool   `json:"enabled"`
		Endpoint *string `json:"endpoint"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	engine := strings.ToLower(strings.TrimSpace(payload.Engine))
	if engine == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "engine is required")
		return
	}
	item, err := s.settings.Update(r.Context(), domain.EngineRuntimePatch{
		Name:     engine,
		Enabled:  payload.Enabled,
		Endpoint: payload.Endpoint,
	})
	if err != nil {
		if errors.Is(err, settings.ErrUnknownEngine) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.ToLower(strings.TrimSpace(part))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func parseInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	if err := json.NewDecoder(bytes.NewReader(payload)).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
