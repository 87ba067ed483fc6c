// Package microlink resolves page images through the Microlink metadata API.
package microlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"metasearch/searchservice/internal/providers/common"
)

const defaultEndpoint = "https://api.microlink.io"

type Config struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	endpoint  string
	apiKey    string
	userAgent string
}

type apiResponse struct {
	Status string `json:"status"`
	Data   struct {
		Image *struct {
			URL string `json:"url"`
		} `json:"image"`
		Logo *struct {
			URL string `json:"url"`
		} `json:"logo"`
	} `json:"data"`
	Message string `json:"message"`
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
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: cfg.UserAgent,
	}
}

// FetchImage returns the page's preview image, or "" when Microlink found none.
func (p *Provider) FetchImage(ctx context.Context, pageURL string) (string, error) {
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	values.Set("url", pageURL)
	uri.RawQuery = values.Encode()

	request := common.Request{
		URL:       uri.String(),
		UserAgent: p.userAgent,
		Accept:    "application/json",
		MaxBytes:  512 * 1024,
	}
	if p.apiKey != "" {
		request.Headers = map[string]string{"x-api-key": p.apiKey}
	}
	body, err := common.Fetch(ctx, p.client, request)
	if err != nil {
		return "", err
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode microlink response: %w", err)
	}
	if payload.Status != "success" {
		return "", fmt.Errorf("microlink status %q: %s", payload.Status, payload.Message)
	}
	if payload.Data.Image != nil && strings.TrimSpace(payload.Data.Image.URL) != "" {
		return strings.TrimSpace(payload.Data.Image.URL), nil
	}
	return "", nil
}
