package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "metasearch/searchservice/internal/api/http"
	"metasearch/searchservice/internal/app"
	"metasearch/searchservice/internal/cache"
	"metasearch/searchservice/internal/domain"
	"metasearch/searchservice/internal/metrics"
	"metasearch/searchservice/internal/providers/duckduckgo"
	"metasearch/searchservice/internal/providers/googlesuggest"
	"metasearch/searchservice/internal/providers/microlink"
	"metasearch/searchservice/internal/providers/opengraph"
	"metasearch/searchservice/internal/providers/searxng"
	"metasearch/searchservice/internal/search"
	"metasearch/searchservice/internal/settings"
	"metasearch/searchservice/internal/telemetry"
)

const (
	serviceName = "metasearch"
	version     = "1.0.0"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, version)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("engineTimeout", cfg.Search.EngineTimeout),
		slog.String("preferredEngine", cfg.Search.PreferredEngine),
		slog.String("searxngURL", cfg.Engines.SearxngURL),
		slog.Any("searxngEngines", cfg.Engines.SearxngEngines),
		slog.Bool("duckduckgo", cfg.Engines.DuckDuckGoEnabled),
		slog.String("imageProvider", cfg.Images.Provider),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("resultCacheTTL", cfg.Cache.ResultTTL),
	)

	engines := buildEngines(cfg)
	settingsManager := settings.NewManager(buildSettingsStore(cfg, logger), logger, settingsEngines(engines)...)

	searchService := search.NewService(engines, cfg.Search.EngineTimeout, buildServiceOptions(cfg, logger, settingsManager)...)
	defer searchService.Close()

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithEngineSettings(settingsManager),
		apihttp.WithRateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		apihttp.WithTrustedProxies(cfg.RateLimit.TrustedProxies),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Fan-out can take up to the engine timeout plus enrichment.
		WriteTimeout: cfg.Search.EngineTimeout + cfg.Images.Timeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	searchService.StartBackground(rootCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("metasearch service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Any("engines", searchService.EngineNames()),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("metasearch service stopped")
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

var engineLabels = map[string]string{
	"google": "Google",
	"bing":   "Bing",
	"yahoo":  "Yahoo",
}

func buildEngines(cfg app.Config) []search.Engine {
	engines := make([]search.Engine, 0, len(cfg.Engines.SearxngEngines)+1)
	for _, name := range cfg.Engines.SearxngEngines {
		if name == "duckduckgo" && cfg.Engines.DuckDuckGoEnabled {
			continue
		}
		engines = append(engines, searxng.NewProvider(searxng.Config{
			Name:      name,
			Label:     engineLabels[name],
			Endpoint:  cfg.Engines.SearxngURL,
			UserAgent: cfg.UserAgent,
			Client:    newHTTPClient(cfg.Search.EngineTimeout),
		}))
	}
	if cfg.Engines.DuckDuckGoEnabled {
		engines = append(engines, duckduckgo.NewProvider(duckduckgo.Config{
			Endpoint: cfg.Engines.DuckDuckGoEndpoint,
			Client:   newHTTPClient(cfg.Search.EngineTimeout),
		}))
	}
	return engines
}

func settingsEngines(engines []search.Engine) []settings.Engine {
	out := make([]settings.Engine, 0, len(engines))
	for _, engine := range engines {
		out = append(out, engine)
	}
	return out
}

func buildImageProvider(cfg app.Config) search.ImageProvider {
	client := newHTTPClient(cfg.Images.Timeout)
	switch cfg.Images.Provider {
	case "microlink":
		return microlink.NewProvider(microlink.Config{
			Endpoint:  cfg.Images.MicrolinkEndpoint,
			APIKey:    cfg.Images.MicrolinkAPIKey,
			UserAgent: cfg.UserAgent,
			Client:    client,
		})
	case "opengraph":
		return opengraph.NewProvider(opengraph.Config{Client: client})
	default:
		return nil
	}
}

func buildServiceOptions(cfg app.Config, logger *slog.Logger, engineSwitch search.EngineSwitch) []search.ServiceOption {
	results := cache.New[domain.SearchResponse](cache.Options{
		Name:          "results",
		Capacity:      cfg.Cache.ResultSize,
		TTL:           cfg.Cache.ResultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Logger:        logger,
	})
	images := cache.New[string](cache.Options{
		Name:          "images",
		Capacity:      cfg.Cache.ImageSize,
		TTL:           cfg.Cache.ImageTTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Logger:        logger,
	})
	suggestions := cache.New[[]string](cache.Options{
		Name:          "suggestions",
		Capacity:      cfg.Cache.SuggestionSize,
		TTL:           cfg.Cache.SuggestionTTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Logger:        logger,
	})

	enricher := search.NewEnricher(search.EnricherConfig{
		Images:      buildImageProvider(cfg),
		Cache:       images,
		Timeout:     cfg.Images.Timeout,
		Concurrency: cfg.Images.Concurrency,
		Logger:      logger,
	})
	suggester := search.NewSuggester(search.SuggesterConfig{
		Provider: googlesuggest.NewProvider(googlesuggest.Config{
			Endpoint:  cfg.Suggestions.Endpoint,
			Language:  cfg.Search.DefaultLanguage,
			UserAgent: cfg.UserAgent,
			Client:    newHTTPClient(cfg.Suggestions.Timeout),
		}),
		Cache:   suggestions,
		Timeout: cfg.Suggestions.Timeout,
		Logger:  logger,
	})

	return []search.ServiceOption{
		search.WithLogger(logger),
		search.WithVersion(version),
		search.WithPreferredEngine(cfg.Search.PreferredEngine),
		search.WithDefaultLanguage(cfg.Search.DefaultLanguage),
		search.WithReportInterval(cfg.Search.ReportInterval),
		search.WithResultCache(results),
		search.WithEnricher(enricher),
		search.WithSuggester(suggester),
		search.WithEngineSwitch(engineSwitch),
	}
}

func buildSettingsStore(cfg app.Config, logger *slog.Logger) settings.Store {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return settings.NewMemoryStore()
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("engine settings kept in memory: invalid redis url", slog.String("error", err.Error()))
		return settings.NewMemoryStore()
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("engine settings kept in memory: redis unavailable", slog.String("error", err.Error()))
		_ = client.Close()
		return settings.NewMemoryStore()
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return settings.NewRedisStore(client, "")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
