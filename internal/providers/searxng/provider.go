// Package searxng adapts a SearXNG instance's JSON API into a search engine.
// One provider is registered per upstream engine name (google, bing, ...),
// each restricting SearXNG to that engine.
package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"metasearch/searchservice/internal/domain"
	"metasearch/searchservice/internal/providers/common"
)

const (
	defaultEndpoint = "http://localhost:8888"
	maxBodySize     = 2 * 1024 * 1024
)

type Config struct {
	Name      string
	Label     string
	Endpoint  string
	Engines   []string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	name      string
	label     string
	engines   []string
	userAgent string
	client    *http.Client

	mu       sync.RWMutex
	endpoint string
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Engine  string `json:"engine"`
	} `json:"results"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = "searxng"
	}
	label := strings.TrimSpace(cfg.Label)
	if label == "" {
		label = name
	}
	engines := make([]string, 0, len(cfg.Engines))
	for _, engine := range cfg.Engines {
		if engine = strings.ToLower(strings.TrimSpace(engine)); engine != "" {
			engines = append(engines, engine)
		}
	}
	if len(engines) == 0 && name != "searxng" {
		engines = []string{name}
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	return &Provider{
		name:      name,
		label:     label,
		engines:   engines,
		userAgent: cfg.UserAgent,
		client:    client,
		endpoint:  endpoint,
	}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Info() domain.EngineInfo {
	return domain.EngineInfo{
		Name:    p.name,
		Label:   p.label,
		Kind:    "searxng",
		Enabled: true,
	}
}

func (p *Provider) Endpoint() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoint
}

// SetEndpoint points the provider at another SearXNG instance.
func (p *Provider) SetEndpoint(endpoint string) error {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	parsed, err := url.Parse(endpoint)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("invalid searxng endpoint %q", endpoint)
	}
	p.mu.Lock()
	p.endpoint = endpoint
	p.mu.Unlock()
	return nil
}

func (p *Provider) Search(ctx context.Context, query domain.EngineQuery) ([]domain.RawResult, error) {
	uri, err := url.Parse(p.Endpoint() + "/search")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	values.Set("q", strings.TrimSpace(query.Keyword))
	values.Set("format", "json")
	values.Set("pageno", "1")
	if lang := strings.TrimSpace(query.Language); lang != "" {
		values.Set("language", lang)
	}
	if len(p.engines) > 0 {
		values.Set("engines", strings.Join(p.engines, ","))
	}
	uri.RawQuery = values.Encode()

	body, err := common.Fetch(ctx, p.client, common.Request{
		URL:       uri.String(),
		UserAgent: p.userAgent,
		Accept:    "application/json",
		MaxBytes:  maxBodySize,
	})
	if err != nil {
		return nil, err
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode searxng response: %w", err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}
	results := make([]domain.RawResult, 0, min(len(payload.Results), limit))
	for _, item := range payload.Results {
		link := strings.TrimSpace(item.URL)
		if link == "" {
			continue
		}
		results = append(results, domain.RawResult{
			Title:   common.CleanHTMLText(item.Title),
			URL:     link,
			Snippet: common.CleanHTMLText(item.Content),
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
