// Package googlesuggest queries Google's public autocomplete endpoint.
package googlesuggest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"metasearch/searchservice/internal/providers/common"
)

const defaultEndpoint = "https://suggestqueries.google.com/complete/search"

type Config struct {
	Endpoint  string
	Language  string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	endpoint  string
	language  string
	userAgent string
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Provider{
		client:    client,
		endpoint:  endpoint,
		language:  strings.TrimSpace(cfg.Language),
		userAgent: cfg.UserAgent,
	}
}

// Suggest returns completions in upstream order. The firefox client format
// is ["<query>", ["s1", "s2", ...], ...].
func (p *Provider) Suggest(ctx context.Context, keyword string) ([]string, error) {
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	values.Set("client", "firefox")
	values.Set("q", keyword)
	if p.language != "" {
		values.Set("hl", p.language)
	}
	uri.RawQuery = values.Encode()

	body, err := common.Fetch(ctx, p.client, common.Request{
		URL:       uri.String(),
		UserAgent: p.userAgent,
		Accept:    "application/json",
		MaxBytes:  256 * 1024,
	})
	if err != nil {
		return nil, err
	}
	return parseSuggestions(body)
}

func parseSuggestions(body []byte) ([]string, error) {
	var payload []json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if len(payload) < 2 {
		return nil, fmt.Errorf("unexpected suggestions payload")
	}
	var items []string
	if err := json.Unmarshal(payload[1], &items); err != nil {
		return nil, fmt.Errorf("decode suggestion list: %w", err)
	}
	return items, nil
}
