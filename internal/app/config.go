package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	UserAgent string `yaml:"user_agent"`
	RedisURL  string `yaml:"redis_url"`

	Search      SearchConfig      `yaml:"search"`
	Engines     EnginesConfig     `yaml:"engines"`
	Images      ImagesConfig      `yaml:"images"`
	Suggestions SuggestionsConfig `yaml:"suggestions"`
	Cache       CacheConfig       `yaml:"cache"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
}

type SearchConfig struct {
	EngineTimeout   time.Duration `yaml:"engine_timeout"`
	PreferredEngine string        `yaml:"preferred_engine"`
	DefaultLanguage string        `yaml:"default_language"`
	ReportInterval  time.Duration `yaml:"report_interval"`
}

type EnginesConfig struct {
	SearxngURL         string   `yaml:"searxng_url"`
	SearxngEngines     []string `yaml:"searxng_engines"`
	DuckDuckGoEnabled  bool     `yaml:"duckduckgo_enabled"`
	DuckDuckGoEndpoint string   `yaml:"duckduckgo_endpoint"`
}

type ImagesConfig struct {
	// Provider is microlink, opengraph or none.
	Provider          string        `yaml:"provider"`
	MicrolinkEndpoint string        `yaml:"microlink_endpoint"`
	MicrolinkAPIKey   string        `yaml:"microlink_api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	Concurrency       int           `yaml:"concurrency"`
}

type SuggestionsConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	ResultTTL      time.Duration `yaml:"result_ttl"`
	ResultSize     int           `yaml:"result_size"`
	SuggestionTTL  time.Duration `yaml:"suggestion_ttl"`
	SuggestionSize int           `yaml:"suggestion_size"`
	ImageTTL       time.Duration `yaml:"image_ttl"`
	ImageSize      int           `yaml:"image_size"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type RateLimitConfig struct {
	Requests       int           `yaml:"requests"`
	Window         time.Duration `yaml:"window"`
	TrustedProxies []string      `yaml:"trusted_proxies"`
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:  ":3000",
		LogLevel:  "info",
		LogFormat: "text",
		UserAgent: "metasearch/1.0",
		Search: SearchConfig{
			EngineTimeout:   10 * time.Second,
			PreferredEngine: "google",
			DefaultLanguage: "zh-TW",
			ReportInterval:  time.Hour,
		},
		Engines: EnginesConfig{
			SearxngURL:        "http://localhost:8888",
			SearxngEngines:    []string{"google", "bing", "yahoo"},
			DuckDuckGoEnabled: true,
		},
		Images: ImagesConfig{
			Provider:    "microlink",
			Timeout:     3 * time.Second,
			Concurrency: 8,
		},
		Suggestions: SuggestionsConfig{
			Timeout: 2 * time.Second,
		},
		Cache: CacheConfig{
			ResultTTL:      30 * time.Minute,
			ResultSize:     1000,
			SuggestionTTL:  24 * time.Hour,
			SuggestionSize: 500,
			ImageTTL:       24 * time.Hour,
			ImageSize:      2000,
			SweepInterval:  2 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   15 * time.Minute,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CONFIG_FILE and finally environment variables.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.UserAgent = getEnv("SEARCH_USER_AGENT", c.UserAgent)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)

	c.Search.EngineTimeout = getEnvDuration("SEARCH_ENGINE_TIMEOUT", c.Search.EngineTimeout)
	c.Search.PreferredEngine = getEnv("SEARCH_PREFERRED_ENGINE", c.Search.PreferredEngine)
	c.Search.DefaultLanguage = getEnv("SEARCH_DEFAULT_LANGUAGE", c.Search.DefaultLanguage)
	c.Search.ReportInterval = getEnvDuration("STATS_REPORT_INTERVAL", c.Search.ReportInterval)

	c.Engines.SearxngURL = getEnv("SEARXNG_URL", c.Engines.SearxngURL)
	c.Engines.SearxngEngines = getEnvList("SEARXNG_ENGINES", c.Engines.SearxngEngines)
	c.Engines.DuckDuckGoEnabled = getEnvBool("DUCKDUCKGO_ENABLED", c.Engines.DuckDuckGoEnabled)
	c.Engines.DuckDuckGoEndpoint = getEnv("DUCKDUCKGO_ENDPOINT", c.Engines.DuckDuckGoEndpoint)

	c.Images.Provider = getEnv("IMAGE_PROVIDER", c.Images.Provider)
	c.Images.MicrolinkEndpoint = getEnv("MICROLINK_ENDPOINT", c.Images.MicrolinkEndpoint)
	c.Images.MicrolinkAPIKey = getEnv("MICROLINK_API_KEY", c.Images.MicrolinkAPIKey)
	c.Images.Timeout = getEnvDuration("IMAGE_TIMEOUT", c.Images.Timeout)
	c.Images.Concurrency = getEnvInt("IMAGE_CONCURRENCY", c.Images.Concurrency)

	c.Suggestions.Endpoint = getEnv("SUGGEST_ENDPOINT", c.Suggestions.Endpoint)
	c.Suggestions.Timeout = getEnvDuration("SUGGEST_TIMEOUT", c.Suggestions.Timeout)

	c.Cache.ResultTTL = getEnvDuration("CACHE_RESULT_TTL", c.Cache.ResultTTL)
	c.Cache.ResultSize = getEnvInt("CACHE_RESULT_SIZE", c.Cache.ResultSize)
	c.Cache.SuggestionTTL = getEnvDuration("CACHE_SUGGESTION_TTL", c.Cache.SuggestionTTL)
	c.Cache.SuggestionSize = getEnvInt("CACHE_SUGGESTION_SIZE", c.Cache.SuggestionSize)
	c.Cache.ImageTTL = getEnvDuration("CACHE_IMAGE_TTL", c.Cache.ImageTTL)
	c.Cache.ImageSize = getEnvInt("CACHE_IMAGE_SIZE", c.Cache.ImageSize)
	c.Cache.SweepInterval = getEnvDuration("CACHE_SWEEP_INTERVAL", c.Cache.SweepInterval)

	c.RateLimit.Requests = getEnvInt("RATE_LIMIT_REQUESTS", c.RateLimit.Requests)
	c.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.TrustedProxies = getEnvList("RATE_LIMIT_TRUSTED_PROXIES", c.RateLimit.TrustedProxies)
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Search.PreferredEngine = strings.ToLower(strings.TrimSpace(c.Search.PreferredEngine))
	c.Images.Provider = strings.ToLower(strings.TrimSpace(c.Images.Provider))

	engines := make([]string, 0, len(c.Engines.SearxngEngines))
	seen := make(map[string]struct{}, len(c.Engines.SearxngEngines))
	for _, name := range c.Engines.SearxngEngines {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		engines = append(engines, name)
	}
	c.Engines.SearxngEngines = engines
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if len(c.Engines.SearxngEngines) == 0 && !c.Engines.DuckDuckGoEnabled {
		errs = append(errs, errors.New("at least one engine must be configured"))
	}
	if lang := strings.TrimSpace(c.Search.DefaultLanguage); lang != "" {
		if _, err := language.Parse(strings.ReplaceAll(lang, "_", "-")); err != nil {
			errs = append(errs, fmt.Errorf("search.default_language: %w", err))
		}
	}
	switch c.Images.Provider {
	case "", "none", "microlink", "opengraph":
	default:
		errs = append(errs, fmt.Errorf(`images.provider must be "microlink", "opengraph" or "none", got %q`, c.Images.Provider))
	}
	for name, value := range map[string]time.Duration{
		"search.engine_timeout": c.Search.EngineTimeout,
		"cache.result_ttl":      c.Cache.ResultTTL,
		"cache.suggestion_ttl":  c.Cache.SuggestionTTL,
		"cache.image_ttl":       c.Cache.ImageTTL,
	} {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${VAR} references with their environment values.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// getEnvDuration accepts Go durations ("1500ms") or whole seconds ("10").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return fallback
		}
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	return strings.Split(raw, ",")
}
